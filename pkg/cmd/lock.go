package cmd

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/caseflow-io/caseflow/pkg/lock"
)

// NewLocker returns the per-instance lock. With no redis URL the lock is
// process-local, which is correct for a single API node; multi-node
// deployments point it at a shared redis.
func NewLocker(redisURL string, logger *slog.Logger) (lock.Locker, error) {
	if redisURL == "" {
		return lock.NewLocalLocker(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return lock.NewRedisLocker(redis.NewClient(opts), logger, lock.DefaultTTL), nil
}
