package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker guards a sweep so that only one scheduler instance works a tenant at
// a time. Release only deletes the lock when the token still matches, so an
// expired lock taken over by another instance is never released by us.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type redisLocker struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisLocker(client *redis.Client, log *zap.Logger) Locker {
	return &redisLocker{client: client, log: log.Named("scheduler.lock")}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		if err := l.client.Eval(context.Background(), releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}

// noopLocker always grants the lock. Used when redis is not configured, i.e.
// a single-instance deployment.
type noopLocker struct{}

func NewNoopLocker() Locker { return noopLocker{} }

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
