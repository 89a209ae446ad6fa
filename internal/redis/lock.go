package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-holder lock shared by every instance using the same Redis
type Lock struct {
	client LockCmdable
	key    string
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// LockCmdable is the subset of the client the lock needs
type LockCmdable interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// NewSeedLock returns the lock guarding the demo data seed
func NewSeedLock(client LockCmdable, ttl time.Duration, logger *slog.Logger) *Lock {
	return &Lock{
		client: client,
		key:    seedLockKey,
		ttl:    ttl,
		retry:  100 * time.Millisecond,
		logger: logger,
	}
}

// Acquire blocks until the lock is held or ctx is done. The returned
// function releases it.
func (l *Lock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", l.key, err)
		}
		if ok {
			l.logger.Debug("lock acquired", "key", l.key)
			return func(ctx context.Context) error {
				return l.release(ctx, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", l.key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Lock) release(ctx context.Context, token string) error {
	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.key, err)
	}
	if released == 0 {
		l.logger.Warn("lock expired before release", "key", l.key)
	}
	return nil
}
