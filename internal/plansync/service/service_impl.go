package service

import (
	"context"

	"github.com/beneflow/beneflow/internal/clock"
	"github.com/beneflow/beneflow/internal/config"
	customerdomain "github.com/beneflow/beneflow/internal/customer/domain"
	obsmetrics "github.com/beneflow/beneflow/internal/observability/metrics"
	"github.com/beneflow/beneflow/internal/plansync/domain"
	rulesdomain "github.com/beneflow/beneflow/internal/rules/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minBatchSize = 50
	maxBatchSize = 5000
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Cfg          config.Config
	Clock        clock.Clock
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
	Rules        rulesdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          config.Config
	clock        clock.Clock
	repo         domain.Repository
	customerRepo customerdomain.Repository
	rules        rulesdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("plansync.service"),
		cfg:          p.Cfg,
		clock:        p.Clock,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		rules:        p.Rules,
	}
}

func (s *Service) SyncByIDs(ctx context.Context, tenantID snowflake.ID, customerIDs []snowflake.ID) (domain.Result, error) {
	if len(customerIDs) == 0 {
		return domain.Result{}, nil
	}

	resolved, err := s.rules.Resolve(ctx, tenantID)
	if err != nil {
		return domain.Result{}, err
	}
	// Grace days extend the suspension threshold; a customer is suspended
	// once days overdue reach the extended threshold.
	threshold := resolved.SuspensionThresholdDays + resolved.GracePeriodDays

	statusRows, err := s.customerRepo.ListStatusByIDs(ctx, s.db, tenantID, customerIDs)
	if err != nil {
		return domain.Result{}, err
	}
	if len(statusRows) == 0 {
		return domain.Result{}, nil
	}

	overdueRows, err := s.repo.ListOldestOpenDue(ctx, s.db, tenantID, customerIDs)
	if err != nil {
		return domain.Result{}, err
	}
	oldestDue := make(map[snowflake.ID]int, len(overdueRows))
	now := s.clock.Now()
	for _, row := range overdueRows {
		days := int(now.Sub(row.OldestDue).Hours() / 24)
		if days < 0 {
			days = 0
		}
		oldestDue[row.CustomerID] = days
	}

	var toSuspend, toReactivate []snowflake.ID
	for _, row := range statusRows {
		if row.PlanStatus == customerdomain.PlanStatusCanceled {
			continue
		}
		overdue := oldestDue[row.ID] >= threshold
		switch {
		case overdue && row.PlanStatus != customerdomain.PlanStatusSuspended:
			toSuspend = append(toSuspend, row.ID)
		case !overdue && row.PlanStatus == customerdomain.PlanStatusSuspended:
			toReactivate = append(toReactivate, row.ID)
		}
	}

	result := domain.Result{Scanned: len(statusRows)}
	if len(toSuspend) > 0 {
		n, err := s.customerRepo.UpdatePlanStatusBatch(ctx, s.db, tenantID, toSuspend, customerdomain.PlanStatusSuspended)
		if err != nil {
			return domain.Result{}, err
		}
		result.Suspended = int(n)
		obsmetrics.Default().IncPlanTransition(customerdomain.PlanStatusSuspended)
	}
	if len(toReactivate) > 0 {
		n, err := s.customerRepo.UpdatePlanStatusBatch(ctx, s.db, tenantID, toReactivate, customerdomain.PlanStatusActive)
		if err != nil {
			return domain.Result{}, err
		}
		result.Reactivated = int(n)
		obsmetrics.Default().IncPlanTransition(customerdomain.PlanStatusActive)
	}

	if result.Suspended > 0 || result.Reactivated > 0 {
		s.log.Info("plan status synchronized",
			zap.Int64("tenant_id", tenantID.Int64()),
			zap.Int("scanned", result.Scanned),
			zap.Int("suspended", result.Suspended),
			zap.Int("reactivated", result.Reactivated))
	}
	return result, nil
}

func (s *Service) SyncAllInBatches(ctx context.Context, tenantID snowflake.ID, batchSize int) (domain.Result, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.PlanSyncDefaultBatchSize
	}
	if batchSize < minBatchSize {
		batchSize = minBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	var total domain.Result
	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		ids, err := s.customerRepo.ListIDsAfter(ctx, s.db, tenantID, afterID, batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		batch, err := s.SyncByIDs(ctx, tenantID, ids)
		if err != nil {
			return total, err
		}
		total.Add(batch)

		afterID = ids[len(ids)-1]
		if len(ids) < batchSize {
			return total, nil
		}
	}
}
