package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockFailed wraps redis failures while managing the sweep lease.
var ErrLockFailed = errors.New("sweep lock operation failed")

const lockKey = "subscription-engine:trial_sweep:lock"

// releaseScript deletes the lease only when this holder still owns it, so a
// slow run cannot drop a lease that already rolled over to another holder.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisLock is a best-effort lease backed by SET NX. It keeps concurrent
// replicas from sweeping at the same time; the sweep itself stays idempotent.
type RedisLock struct {
	client *redis.Client
	token  string
}

// NewRedisLock creates a lock over the given client.
func NewRedisLock(client *redis.Client) *RedisLock {
	if client == nil {
		panic("sweeper: redis client is required")
	}
	return &RedisLock{client: client}
}

// Acquire takes the lease for ttl. Returns false when another holder owns it.
func (l *RedisLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return false, errors.Join(ErrLockFailed, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lease if this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""

	if err := releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errors.Join(ErrLockFailed, err)
	}
	return nil
}
