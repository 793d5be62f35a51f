package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// OverdueRow carries the oldest open due date per customer.
type OverdueRow struct {
	CustomerID snowflake.ID
	OldestDue  time.Time
}

type Repository interface {
	// ListOldestOpenDue aggregates the earliest due date over open
	// (PENDING/OVERDUE) receivables for each of the given customers.
	// Customers with no open receivable are absent from the result.
	ListOldestOpenDue(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, customerIDs []snowflake.ID) ([]OverdueRow, error)
}
