package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CredentialsRepository interface {
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Credentials, error)
	// ListConfiguredTenantIDs returns every tenant with a nonempty API key,
	// ordered by tenant id.
	ListConfiguredTenantIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
}
