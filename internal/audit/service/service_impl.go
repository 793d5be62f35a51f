package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/beneflow/beneflow/internal/audit/domain"
	"github.com/beneflow/beneflow/internal/clock"
	customerdomain "github.com/beneflow/beneflow/internal/customer/domain"
	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxListLimit = 200

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Recorder {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return
	}

	entry := &domain.Entry{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		Action:     action,
		TargetType: strings.TrimSpace(targetType),
		TargetID:   strings.TrimSpace(targetID),
		CreatedAt:  s.clock.Now(),
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}

	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("audit insert failed",
			zap.Int64("tenant_id", tenantID.Int64()),
			zap.String("action", action),
			zap.Error(err))
	}
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Entry, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, customerdomain.ErrInvalidTenant
	}

	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.repo.List(ctx, s.db, tenantID, filter)
}
