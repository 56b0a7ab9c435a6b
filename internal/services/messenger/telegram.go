package messenger

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotSender is the part of *tgbotapi.BotAPI the messenger needs.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// LazySender connects to Telegram on the first send. Commands that never
// message anyone then start without Telegram being reachable. A failed
// connect is retried on the next send.
type LazySender struct {
	dial func() (BotSender, error)

	mu     sync.Mutex
	sender BotSender
}

func NewLazySender(dial func() (BotSender, error)) *LazySender {
	return &LazySender{dial: dial}
}

func (l *LazySender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	sender, err := l.connect()
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("connect to telegram: %w", err)
	}
	return sender.Send(c)
}

func (l *LazySender) connect() (BotSender, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sender != nil {
		return l.sender, nil
	}
	sender, err := l.dial()
	if err != nil {
		return nil, err
	}
	l.sender = sender
	return sender, nil
}

type Telegram struct {
	bot BotSender
}

func NewTelegram(bot BotSender) *Telegram {
	return &Telegram{bot: bot}
}

func (t *Telegram) Send(ctx context.Context, recipient string, msg Message) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram recipient %q is not a chat id: %w", recipient, err)
	}

	var c tgbotapi.Chattable
	if len(msg.Photo) > 0 {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: msg.PhotoName, Bytes: msg.Photo})
		photo.Caption = msg.Text
		c = photo
	} else {
		c = tgbotapi.NewMessage(chatID, msg.Text)
	}

	// the bot API client takes no context, so the send is abandoned on timeout
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(c)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send to %s: %w", recipient, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram send to %s: %w", recipient, ctx.Err())
	}
}
