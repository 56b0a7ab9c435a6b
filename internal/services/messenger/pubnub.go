package messenger

import (
	"context"
	"encoding/base64"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// Publisher publishes a payload on a PubNub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload map[string]any) error
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// NewPubNubClient builds the PubNub SDK client.
func NewPubNubClient(cfg PubNubConfig) *pubnub.PubNub {
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey

	return pubnub.NewPubNub(pnConfig)
}

type pubnubPublisher struct {
	pn *pubnub.PubNub
}

// NewPubNubPublisher adapts the SDK client to Publisher.
func NewPubNubPublisher(pn *pubnub.PubNub) Publisher {
	return &pubnubPublisher{pn: pn}
}

func (p *pubnubPublisher) Publish(ctx context.Context, channel string, payload map[string]any) error {
	_, st, err := p.pn.PublishWithContext(ctx).
		Channel(channel).
		Message(payload).
		Execute()
	if err != nil {
		return err
	}
	if st.StatusCode >= 400 {
		return fmt.Errorf("pubnub publish returned status %d", st.StatusCode)
	}
	return nil
}

// PubNub publishes notifications on the per-user channel "user-<id>" that
// the web front end listens on.
type PubNub struct {
	publisher Publisher
}

func NewPubNub(publisher Publisher) *PubNub {
	return &PubNub{publisher: publisher}
}

func (p *PubNub) Send(ctx context.Context, recipient string, msg Message) error {
	payload := map[string]any{
		"type": "notification",
		"text": msg.Text,
	}
	if len(msg.Photo) > 0 {
		payload["image_name"] = msg.PhotoName
		payload["image_png"] = base64.StdEncoding.EncodeToString(msg.Photo)
	}

	channel := fmt.Sprintf("user-%s", recipient)
	if err := p.publisher.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("pubnub publish to %s: %w", channel, err)
	}
	return nil
}
