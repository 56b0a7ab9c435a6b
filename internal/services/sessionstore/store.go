package sessionstore

import (
	"context"
	"errors"

	"partyflow/models"
)

var ErrNotFound = errors.New("session: not found")

// Store keeps one conversation session per buyer key. Callers serialize
// access per key.
type Store interface {
	Get(ctx context.Context, key string) (*models.ConversationSession, error)
	Put(ctx context.Context, s *models.ConversationSession) error
	Delete(ctx context.Context, key string) error
}
