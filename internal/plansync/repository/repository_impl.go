package repository

import (
	"context"
	"fmt"

	"github.com/beneflow/beneflow/internal/plansync/domain"
	pkgdb "github.com/beneflow/beneflow/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// overdueRow holds oldest_due as text: MIN(due_date) is an expression, so the
// sqlite driver cannot map it to time.Time from the column decltype.
type overdueRow struct {
	CustomerID snowflake.ID
	OldestDue  string
}

func (r *repo) ListOldestOpenDue(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, customerIDs []snowflake.ID) ([]domain.OverdueRow, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	var raw []overdueRow
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, MIN(due_date) AS oldest_due
		 FROM receivables
		 WHERE tenant_id = ? AND customer_id IN ? AND status IN ('PENDING', 'OVERDUE')
		 GROUP BY customer_id`,
		tenantID,
		customerIDs,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}

	rows := make([]domain.OverdueRow, 0, len(raw))
	for _, row := range raw {
		due, err := pkgdb.ParseScannedDate(row.OldestDue)
		if err != nil {
			return nil, fmt.Errorf("oldest due for customer %d: %w", row.CustomerID.Int64(), err)
		}
		rows = append(rows, domain.OverdueRow{CustomerID: row.CustomerID, OldestDue: due})
	}
	return rows, nil
}
