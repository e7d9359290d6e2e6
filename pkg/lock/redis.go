package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when the caller still owns it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`

const acquireRetryInterval = 50 * time.Millisecond

// NewRedisLocker returns a Locker backed by Redis SET NX, for deployments
// running more than one API node against the same database.
func NewRedisLocker(client redis.Cmdable, logger *slog.Logger, ttl time.Duration) Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &redisLocker{
		client: client,
		logger: logger.With("module", "lock"),
		ttl:    ttl,
	}
}

type redisLocker struct {
	client redis.Cmdable
	logger *slog.Logger
	ttl    time.Duration
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if ctx.Value(contextKey(key)) != nil {
		return fn(ctx)
	}

	token := uuid.New().String()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %q: %w", key, err)
		}

		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return ErrLockTimeout
		case <-time.After(acquireRetryInterval):
		}
	}

	defer l.release(key, token)

	return fn(context.WithValue(ctx, contextKey(key), token))
}

func (l *redisLocker) release(key, token string) {
	// The caller's context may already be cancelled, but the key must still
	// be released.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Result()
	if err != nil {
		l.logger.Error("failed to release lock", "key", key, "error", err)

		return
	}

	if deleted, ok := reply.(int64); !ok || deleted != 1 {
		l.logger.Warn("lock already expired or taken over", "key", key)
	}
}
