package service

import (
	"context"
	"strings"

	"github.com/beneflow/beneflow/internal/cache"
	"github.com/beneflow/beneflow/internal/config"
	"github.com/beneflow/beneflow/internal/rules/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Repo  domain.Repository
	Cache *cache.RulesCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   config.Config
	repo  domain.Repository
	cache *cache.RulesCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("rules.service"),
		cfg:   p.Cfg,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) Resolve(ctx context.Context, tenantID snowflake.ID) (domain.Resolved, error) {
	if cached, ok := s.cache.Get(tenantID); ok {
		return cached, nil
	}

	resolved := domain.Resolved{
		SuspensionThresholdDays:      s.cfg.DefaultSuspensionDays,
		GracePeriodDays:              0,
		DefaultChannel:               s.cfg.DefaultChannel,
		NotificationFrequencyMinutes: s.cfg.DefaultFrequencyMinutes,
	}

	rules, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return domain.Resolved{}, err
	}
	if rules == nil {
		s.cache.Set(tenantID, resolved)
		return resolved, nil
	}

	if rules.SuspensionThresholdDays != nil && *rules.SuspensionThresholdDays > 0 {
		resolved.SuspensionThresholdDays = *rules.SuspensionThresholdDays
	}
	if rules.GracePeriodDays != nil && *rules.GracePeriodDays > 0 {
		resolved.GracePeriodDays = *rules.GracePeriodDays
	}
	if channel := strings.TrimSpace(rules.DefaultChannel); channel != "" {
		resolved.DefaultChannel = channel
	}
	if rules.NotificationFrequencyMinutes != nil && *rules.NotificationFrequencyMinutes > 0 {
		resolved.NotificationFrequencyMinutes = *rules.NotificationFrequencyMinutes
	}

	s.cache.Set(tenantID, resolved)
	return resolved, nil
}
