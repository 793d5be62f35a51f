package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/beneflow/beneflow/internal/config"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyWebhookTenant = "beneflow:rl:webhook:%d"

// WebhookLimiter throttles provider webhook deliveries per tenant. Providers
// retry aggressively after outages; without a cap a burst of redeliveries can
// starve the reconciler.
type WebhookLimiter struct {
	log    *zap.Logger
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewWebhookLimiter is disabled (nil) when redis or the rate is not
// configured; callers treat a nil limiter as allow-all.
func NewWebhookLimiter(cfg config.Config, log *zap.Logger) *WebhookLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" || cfg.WebhookRatePerSecond <= 0 || cfg.WebhookRateBurst <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &WebhookLimiter{
		log:    log.Named("ratelimit.webhook"),
		bucket: NewTokenBucket(client),
		rate:   cfg.WebhookRatePerSecond,
		burst:  cfg.WebhookRateBurst,
	}
}

// Allow fails open: a redis outage must not drop provider events.
func (l *WebhookLimiter) Allow(ctx context.Context, tenantID snowflake.ID) bool {
	if l == nil {
		return true
	}
	allowed, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookTenant, tenantID.Int64()), l.rate, l.burst)
	if err != nil {
		l.log.Warn("webhook rate limit check failed", zap.Error(err))
		return true
	}
	return allowed
}
