package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindSchedule(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Schedule, error)
	InsertSchedule(ctx context.Context, db *gorm.DB, schedule *Schedule) error
	UpdateSchedule(ctx context.Context, db *gorm.DB, schedule *Schedule) error
	AdvanceSchedule(ctx context.Context, db *gorm.DB, tenantID, scheduleID snowflake.ID, lastRun, nextRun time.Time) error
	// ListOpenSummaries aggregates open receivables per customer, nearest due
	// date first.
	ListOpenSummaries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]CustomerSummary, error)
	ListOpenItems(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]OpenItem, error)
	// ListActiveScheduleTenantIDs returns every tenant with an active
	// schedule, ordered by tenant id.
	ListActiveScheduleTenantIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
	InsertLogs(ctx context.Context, db *gorm.DB, logs []*Log) error
	ListLogs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]Log, error)
}
