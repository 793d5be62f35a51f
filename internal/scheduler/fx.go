package scheduler

import (
	"context"

	"github.com/beneflow/beneflow/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewLocker),
	fx.Provide(New),
)

// NewLocker wires the redis-backed lock when redis is configured, otherwise a
// pass-through lock for single-instance deployments.
func NewLocker(cfg config.Config, log *zap.Logger) Locker {
	if cfg.RedisAddr == "" {
		return NewNoopLocker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisLocker(client, log)
}

// Run starts the sweep loop on application start and stops it with the app.
func Run(lc fx.Lifecycle, s *Scheduler, cfg config.Config) {
	if !cfg.SchedulerEnabled {
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(loopCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
