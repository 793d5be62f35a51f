package repository

import (
	"context"

	"github.com/beneflow/beneflow/internal/rules/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.BusinessRules, error) {
	var rules domain.BusinessRules
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, suspension_threshold_days, grace_period_days,
			default_channel, notification_frequency_minutes, created_at, updated_at
		 FROM business_rules WHERE tenant_id = ?`,
		tenantID,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	if rules.ID == 0 {
		return nil, nil
	}
	return &rules, nil
}
