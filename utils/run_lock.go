package utils

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock guards named jobs so a second run cannot start while one is active.
type RunLock interface {
	TryLock(ctx context.Context, name string) (release func(), acquired bool, err error)
}

type LocalRunLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{held: make(map[string]bool)}
}

func (l *LocalRunLock) TryLock(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, true, nil
}

const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisRunLock adds a Redis SET NX lock on top of the in-process lock. The
// TTL bounds how long a crashed run can block the next one.
type RedisRunLock struct {
	Redis    *redis.Client
	TTL      time.Duration
	local    *LocalRunLock
	newToken func() string
}

func NewRedisRunLock(redisClient *redis.Client, ttl time.Duration) *RedisRunLock {
	return &RedisRunLock{
		Redis:    redisClient,
		TTL:      ttl,
		local:    NewLocalRunLock(),
		newToken: uuid.NewString,
	}
}

func (l *RedisRunLock) TryLock(ctx context.Context, name string) (func(), bool, error) {
	releaseLocal, ok, _ := l.local.TryLock(ctx, name)
	if !ok {
		return nil, false, nil
	}

	key := fmt.Sprintf("lock:run:%s", name)
	token := l.newToken()

	acquired, err := l.Redis.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		releaseLocal()
		return nil, false, fmt.Errorf("acquire run lock %s: %w", name, err)
	}
	if !acquired {
		releaseLocal()
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			defer releaseLocal()
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.Redis.Eval(releaseCtx, releaseLockScript, []string{key}, token).Err(); err != nil {
				slog.Error("Failed to release run lock", "lock", key, "error", err)
			}
		})
	}, true, nil
}
