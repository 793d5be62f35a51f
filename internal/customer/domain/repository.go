package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StatusRow is the projection plan sync works on.
type StatusRow struct {
	ID         snowflake.ID
	PlanStatus string
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Customer, error)
	// List keyset-paginates by id ascending; afterID=0 starts from the beginning.
	List(ctx context.Context, db *gorm.DB, tenantID, afterID snowflake.ID, limit int) ([]*Customer, error)
	ListStatusByIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]StatusRow, error)
	// ListIDsAfter keyset-paginates ids ascending for batch sweeps.
	ListIDsAfter(ctx context.Context, db *gorm.DB, tenantID, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
	UpdatePlanStatusBatch(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID, status string) (int64, error)
	UpdateProviderCustomerID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, providerCustomerID string) error
	UpdateNotificationBlock(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, blocked bool) error
	UpdateNotificationChannel(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, channel string) error
}
