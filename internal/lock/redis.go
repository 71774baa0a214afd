package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/logger"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by all reconciler instances using the same server.
// The TTL bounds how long a crashed holder can block a trade date.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedis creates a redis-backed lock.
func NewRedis(client *redis.Client, ttl time.Duration, log *zap.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, prefix: "recon:lock:", logger: logger.OrNop(log)}
}

// Acquire takes key or returns domain.ErrRunInProgress when another holder
// has it.
func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	k := r.prefix + key
	token := uuid.NewString()

	acquired, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", k, err)
	}
	if !acquired {
		return nil, domain.ErrRunInProgress
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
			r.logger.Error("failed to release run lock", zap.String("key", k), zap.Error(err))
			return fmt.Errorf("failed to release lock %s: %w", k, err)
		}
		return nil
	}, nil
}
