package service

import (
	"context"
	"strconv"

	"github.com/beneflow/beneflow/internal/customer/domain"
	plansyncdomain "github.com/beneflow/beneflow/internal/plansync/domain"
	"github.com/beneflow/beneflow/pkg/db/pagination"
	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	PlanSync plansyncdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	plansync plansyncdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("customer.service"),
		repo:     p.Repo,
		plansync: p.PlanSync,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ListCustomerResponse{}, domain.ErrInvalidTenant
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 50
	}
	if limit > 250 {
		limit = 250
	}

	var afterID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListCustomerResponse{}, domain.ErrInvalidID
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return domain.ListCustomerResponse{}, domain.ErrInvalidID
		}
		afterID = snowflake.ID(id)
	}

	// Fetch one past the page to detect a next page.
	customers, err := s.repo.List(ctx, s.db, tenantID, afterID, int(limit)+1)
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(customers, limit, func(c *domain.Customer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: c.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(customers) > int(limit) {
		customers = customers[:limit]
	}

	s.syncPlanStatus(ctx, tenantID, customers)

	items := make([]domain.Customer, 0, len(customers))
	for _, c := range customers {
		items = append(items, *c)
	}

	resp := domain.ListCustomerResponse{
		Customers: items,
		HasMore:   pageInfo.HasMore,
	}
	if pageInfo.HasMore {
		resp.NextPageToken = pageInfo.NextPageToken
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCustomerRequest) (domain.Customer, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidTenant
	}

	id, err := snowflake.ParseString(req.ID)
	if err != nil {
		return domain.Customer{}, domain.ErrInvalidID
	}

	if _, err := s.plansync.SyncByIDs(ctx, tenantID, []snowflake.ID{id}); err != nil {
		s.log.Warn("plan status sync failed",
			zap.Int64("tenant_id", tenantID.Int64()),
			zap.Int64("customer_id", id.Int64()),
			zap.Error(err))
	}

	customer, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *customer, nil
}

// syncPlanStatus refreshes plan status for the page being returned, then
// reloads the refreshed statuses into the in-memory rows. Failures only log;
// the read still succeeds with the last persisted status.
func (s *Service) syncPlanStatus(ctx context.Context, tenantID snowflake.ID, customers []*domain.Customer) {
	if len(customers) == 0 {
		return
	}

	ids := make([]snowflake.ID, 0, len(customers))
	for _, c := range customers {
		ids = append(ids, c.ID)
	}

	result, err := s.plansync.SyncByIDs(ctx, tenantID, ids)
	if err != nil {
		s.log.Warn("plan status sync failed",
			zap.Int64("tenant_id", tenantID.Int64()),
			zap.Int("customers", len(ids)),
			zap.Error(err))
		return
	}
	if result.Suspended == 0 && result.Reactivated == 0 {
		return
	}

	rows, err := s.repo.ListStatusByIDs(ctx, s.db, tenantID, ids)
	if err != nil {
		s.log.Warn("plan status reload failed",
			zap.Int64("tenant_id", tenantID.Int64()),
			zap.Error(err))
		return
	}
	statusByID := make(map[snowflake.ID]string, len(rows))
	for _, row := range rows {
		statusByID[row.ID] = row.PlanStatus
	}
	for _, c := range customers {
		if status, ok := statusByID[c.ID]; ok {
			c.PlanStatus = status
		}
	}
}
