package repository

import (
	"context"

	"github.com/beneflow/beneflow/internal/gateway/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.CredentialsRepository {
	return &repo{}
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Credentials, error) {
	var creds domain.Credentials
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, api_key, webhook_secret, created_at, updated_at
		 FROM gateway_credentials WHERE tenant_id = ?`,
		tenantID,
	).Scan(&creds).Error
	if err != nil {
		return nil, err
	}
	if creds.ID == 0 {
		return nil, nil
	}
	return &creds, nil
}

func (r *repo) ListConfiguredTenantIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id FROM gateway_credentials
		 WHERE api_key <> '' ORDER BY tenant_id ASC`,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
