package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Result summarizes one synchronization pass.
type Result struct {
	Scanned     int `json:"scanned"`
	Suspended   int `json:"suspended"`
	Reactivated int `json:"reactivated"`
}

func (r *Result) Add(other Result) {
	r.Scanned += other.Scanned
	r.Suspended += other.Suspended
	r.Reactivated += other.Reactivated
}

// Service derives customer plan status (ACTIVE/SUSPENDED) from outstanding
// receivables. CANCELED customers are never touched.
type Service interface {
	SyncByIDs(ctx context.Context, tenantID snowflake.ID, customerIDs []snowflake.ID) (Result, error)
	SyncAllInBatches(ctx context.Context, tenantID snowflake.ID, batchSize int) (Result, error)
}
