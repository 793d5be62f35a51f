package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service resolves effective business rules for a tenant, falling back to
// the application defaults when the tenant row is missing or incomplete.
type Service interface {
	Resolve(ctx context.Context, tenantID snowflake.ID) (Resolved, error)
}
