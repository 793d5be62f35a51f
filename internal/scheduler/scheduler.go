package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/beneflow/beneflow/internal/clock"
	"github.com/beneflow/beneflow/internal/config"
	gwdomain "github.com/beneflow/beneflow/internal/gateway/domain"
	notificationdomain "github.com/beneflow/beneflow/internal/notification/domain"
	obsmetrics "github.com/beneflow/beneflow/internal/observability/metrics"
	plansyncdomain "github.com/beneflow/beneflow/internal/plansync/domain"
	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Cfg              config.Config
	Clock            clock.Clock
	Locker           Locker
	CredsRepo        gwdomain.CredentialsRepository
	NotificationRepo notificationdomain.Repository
	PlanSync         plansyncdomain.Service
	Notifications    notificationdomain.Service
}

// Scheduler sweeps every configured tenant on an interval: plan status
// synchronization first, then the due-gated notification dispatch. The
// schedule's own next-run timestamp remains the real gate; the sweep just
// gives it a chance to fire.
type Scheduler struct {
	db               *gorm.DB
	log              *zap.Logger
	cfg              config.Config
	clock            clock.Clock
	locker           Locker
	credsRepo        gwdomain.CredentialsRepository
	notificationRepo notificationdomain.Repository
	plansync         plansyncdomain.Service
	notifications    notificationdomain.Service
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:               p.DB,
		log:              p.Log.Named("scheduler"),
		cfg:              p.Cfg,
		clock:            p.Clock,
		locker:           p.Locker,
		credsRepo:        p.CredsRepo,
		notificationRepo: p.NotificationRepo,
		plansync:         p.PlanSync,
		notifications:    p.Notifications,
	}
}

// RunOnce sweeps all tenants once. Per-tenant failures are logged and do not
// stop the sweep; only enumeration failures are returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	tenants, err := s.listTenants(ctx)
	if err != nil {
		return err
	}

	ttl := time.Duration(s.cfg.SchedulerLockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.sweepTenant(ctx, tenantID, ttl)
	}
	return nil
}

// RunForever ticks until the context is canceled.
func (s *Scheduler) RunForever(ctx context.Context) {
	interval := time.Duration(s.cfg.SchedulerIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			if err := s.RunOnce(runCtx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (s *Scheduler) sweepTenant(ctx context.Context, tenantID snowflake.ID, ttl time.Duration) {
	release, acquired, err := s.locker.Acquire(ctx, fmt.Sprintf("beneflow:sweep:%d", tenantID.Int64()), ttl)
	if err != nil {
		s.log.Warn("lock acquisition failed", zap.Int64("tenant_id", tenantID.Int64()), zap.Error(err))
		return
	}
	if !acquired {
		return
	}
	defer release()

	tenantCtx := tenantctx.WithTenantID(ctx, tenantID.Int64())

	if _, err := s.plansync.SyncAllInBatches(tenantCtx, tenantID, s.cfg.PlanSyncDefaultBatchSize); err != nil {
		obsmetrics.Default().IncSchedulerRun("plan_sync", "error")
		s.log.Error("plan sync sweep failed", zap.Int64("tenant_id", tenantID.Int64()), zap.Error(err))
	} else {
		obsmetrics.Default().IncSchedulerRun("plan_sync", "ok")
	}

	if _, err := s.notifications.DispatchDue(tenantCtx, false); err != nil {
		obsmetrics.Default().IncSchedulerRun("dispatch", "error")
		s.log.Error("dispatch sweep failed", zap.Int64("tenant_id", tenantID.Int64()), zap.Error(err))
	} else {
		obsmetrics.Default().IncSchedulerRun("dispatch", "ok")
	}
}

// listTenants unions tenants with gateway credentials and tenants with an
// active notification schedule.
func (s *Scheduler) listTenants(ctx context.Context) ([]snowflake.ID, error) {
	configured, err := s.credsRepo.ListConfiguredTenantIDs(ctx, s.db)
	if err != nil {
		return nil, err
	}
	scheduled, err := s.notificationRepo.ListActiveScheduleTenantIDs(ctx, s.db)
	if err != nil {
		return nil, err
	}

	seen := make(map[snowflake.ID]struct{}, len(configured)+len(scheduled))
	tenants := make([]snowflake.ID, 0, len(configured)+len(scheduled))
	for _, id := range append(configured, scheduled...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		tenants = append(tenants, id)
	}
	return tenants, nil
}
