package sessionstore

import (
	"context"
	"fmt"
	"time"

	"partyflow/models"

	"github.com/redis/go-redis/v9"
)

// Redis stores each session as a hash under "session:<key>". A positive
// TTL is applied to the hash on every write.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func sessionKey(key string) string {
	return fmt.Sprintf("session:%s", key)
}

func (r *Redis) Get(ctx context.Context, key string) (*models.ConversationSession, error) {
	data, err := r.client.HGetAll(ctx, sessionKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}

	s := &models.ConversationSession{
		Key:     key,
		EventID: data["event_id"],
		OwnerID: data["owner_id"],
		Name:    data["name"],
		Phone:   data["phone"],
		Stage:   models.Stage(data["stage"]),
	}
	if ts := data["updated_at"]; ts != "" {
		if updated, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			s.UpdatedAt = updated
		}
	}
	return s, nil
}

func (r *Redis) Put(ctx context.Context, s *models.ConversationSession) error {
	k := sessionKey(s.Key)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"event_id", s.EventID,
			"owner_id", s.OwnerID,
			"name", s.Name,
			"phone", s.Phone,
			"stage", string(s.Stage),
			"updated_at", s.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put session %s: %w", s.Key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, sessionKey(key)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}
