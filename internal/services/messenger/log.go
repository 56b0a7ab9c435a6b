package messenger

import (
	"context"
	"log/slog"
)

// Log writes messages to the structured log instead of delivering them.
// It is used in development when no chat transport is configured.
type Log struct{}

func (Log) Send(_ context.Context, recipient string, msg Message) error {
	slog.Info("Notification", "recipient", recipient, "text", msg.Text, "photo_bytes", len(msg.Photo))
	return nil
}
