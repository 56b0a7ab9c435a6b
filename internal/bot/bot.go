// Package bot is the Telegram chat front end: event listing, the purchase
// conversation and ticket lookup.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"partyflow/internal/services"
	"partyflow/models"
	"partyflow/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	buyPrefix = "buy_"

	textWelcome   = "Welcome to PartyFlow bot! 🥳\nUse /events to see upcoming parties."
	textNoEvents  = "No upcoming parties found."
	textListing   = "🎉 Upcoming Parties: 👇"
	textNoTickets = "You don't have any tickets yet. Use /events to find a party."
	textFailure   = "Something went wrong. Please try again later."
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Conversation interface {
	Begin(ctx context.Context, key, ownerID, eventID string) (services.Reply, error)
	Handle(ctx context.Context, key, text string) (services.Reply, error)
	Cancel(ctx context.Context, key string) (services.Reply, error)
}

type EventLister interface {
	ListEventListings(ctx context.Context) ([]models.EventListing, error)
}

type TicketLister interface {
	ListTicketsForOwner(ctx context.Context, ownerID string) ([]models.OwnedTicket, error)
}

type Bot struct {
	api      API
	sessions Conversation
	events   EventLister
	tickets  TicketLister
	currency string
	timeout  time.Duration

	mu      sync.Mutex
	queues  map[int64]*chatQueue
	workers sync.WaitGroup
}

// maxPendingPerChat bounds the updates waiting behind a busy chat worker.
// Anything beyond it is dropped.
const maxPendingPerChat = 32

// chatQueue holds the updates of one chat that are waiting for its worker.
type chatQueue struct {
	pending []tgbotapi.Update
}

func New(api API, sessions Conversation, events EventLister, tickets TicketLister, currency string) *Bot {
	return &Bot{
		api:      api,
		sessions: sessions,
		events:   events,
		tickets:  tickets,
		currency: strings.ToUpper(currency),
		timeout:  30 * time.Second,
		queues:   make(map[int64]*chatQueue),
	}
}

// Run long-polls Telegram for updates until ctx is done. Each chat gets its
// own worker: updates of one chat are handled in order, different chats in
// parallel, so a slow checkout never holds up another buyer.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()
	defer b.workers.Wait()

	slog.Info("Telegram bot started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch queues the update behind earlier ones from the same chat and
// starts a worker for the chat when none is running.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	chatID := updateChatID(update)

	b.mu.Lock()
	if q, ok := b.queues[chatID]; ok {
		if len(q.pending) >= maxPendingPerChat {
			b.mu.Unlock()
			slog.Warn("Dropping Telegram update, chat queue full", "chat_id", chatID, "update_id", update.UpdateID)
			return
		}
		q.pending = append(q.pending, update)
		b.mu.Unlock()
		return
	}
	q := &chatQueue{pending: []tgbotapi.Update{update}}
	b.queues[chatID] = q
	b.workers.Add(1)
	b.mu.Unlock()

	go b.drain(ctx, chatID, q)
}

// drain handles the chat's updates until its queue is empty, then retires.
func (b *Bot) drain(ctx context.Context, chatID int64, q *chatQueue) {
	defer b.workers.Done()
	for {
		b.mu.Lock()
		if len(q.pending) == 0 {
			delete(b.queues, chatID)
			b.mu.Unlock()
			return
		}
		update := q.pending[0]
		q.pending = q.pending[1:]
		b.mu.Unlock()

		b.HandleUpdate(ctx, update)
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		b.handleText(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := sessionKey(chatID)

	switch msg.Command() {
	case "start":
		b.send(chatID, textWelcome)
	case "events":
		b.listEvents(ctx, chatID)
	case "mytickets":
		b.listTickets(ctx, chatID, ownerID(msg.From, chatID))
	case "cancel":
		reply, err := b.sessions.Cancel(ctx, key)
		b.reply(chatID, reply, err)
	default:
		b.send(chatID, "Unknown command. Use /events to see upcoming parties.")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	reply, err := b.sessions.Handle(ctx, sessionKey(msg.Chat.ID), msg.Text)
	b.reply(msg.Chat.ID, reply, err)
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || !strings.HasPrefix(q.Data, buyPrefix) {
		b.answer(q.ID, "")
		return
	}

	chatID := q.Message.Chat.ID
	eventID := strings.TrimPrefix(q.Data, buyPrefix)

	reply, err := b.sessions.Begin(ctx, sessionKey(chatID), ownerID(q.From, chatID), eventID)
	if err != nil {
		b.answer(q.ID, "Could not start your purchase ❌")
	} else {
		b.answer(q.ID, "🛒 Let's get your ticket")
	}
	b.reply(chatID, reply, err)
}

func (b *Bot) listEvents(ctx context.Context, chatID int64) {
	listings, err := b.events.ListEventListings(ctx)
	if err != nil {
		slog.Error("Failed to list events", "chat_id", chatID, "error", err)
		b.send(chatID, textFailure)
		return
	}
	if len(listings) == 0 {
		b.send(chatID, textNoEvents)
		return
	}

	b.send(chatID, textListing)
	for _, l := range listings {
		m := tgbotapi.NewMessage(chatID, b.listingText(l))
		if l.Remaining > 0 {
			m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("🛒 Buy Ticket", buyPrefix+l.ID),
				),
			)
		}
		if _, err := b.api.Send(m); err != nil {
			slog.Error("Failed to send event listing", "chat_id", chatID, "event_id", l.ID, "error", err)
		}
	}
}

func (b *Bot) listingText(l models.EventListing) string {
	availability := fmt.Sprintf("🎟 %d left", l.Remaining)
	if l.Remaining == 0 {
		availability = "🚫 Sold out"
	}
	return fmt.Sprintf("🎈 %s\n📍 %s | 📅 %s\n💰 Price: %s %s\n%s",
		l.Name, l.Location, l.Date, l.Price.StringFixed(2), b.currency, availability)
}

func (b *Bot) listTickets(ctx context.Context, chatID int64, owner string) {
	tickets, err := b.tickets.ListTicketsForOwner(ctx, owner)
	if err != nil {
		slog.Error("Failed to list tickets", "owner_id", owner, "error", err)
		b.send(chatID, textFailure)
		return
	}
	if len(tickets) == 0 {
		b.send(chatID, textNoTickets)
		return
	}

	var sb strings.Builder
	sb.WriteString("🎟 Your tickets:")
	for _, t := range tickets {
		fmt.Fprintf(&sb, "\n\n%s\n🎈 %s\n📍 %s | 📅 %s", utils.TicketCode(t.ID), t.EventName, t.EventLocation, t.EventDate)
	}
	b.send(chatID, sb.String())
}

// reply sends the conversation's answer. Errors that came with a prompt
// are expected outcomes and only the others are logged.
func (b *Bot) reply(chatID int64, reply services.Reply, err error) {
	if reply.Text == "" {
		if err != nil {
			slog.Error("Conversation step failed", "chat_id", chatID, "error", err)
		}
		b.send(chatID, textFailure)
		return
	}
	b.send(chatID, reply.Text)
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("Failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		slog.Warn("Failed to answer callback", "callback_id", callbackID, "error", err)
	}
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	}
	return 0
}

func sessionKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// ownerID is the Telegram user id. Tickets and notifications are addressed
// by it, which in a private chat is also the chat id.
func ownerID(from *tgbotapi.User, chatID int64) string {
	if from != nil {
		return strconv.FormatInt(from.ID, 10)
	}
	return strconv.FormatInt(chatID, 10)
}
