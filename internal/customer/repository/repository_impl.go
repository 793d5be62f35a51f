package repository

import (
	"context"
	"time"

	"github.com/beneflow/beneflow/internal/customer/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const customerColumns = `id, tenant_id, name, email, phone, plan_status,
	provider_customer_id, notification_blocked, notification_channel,
	referrer_id, referral_rate, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID, afterID snowflake.ID, limit int) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers
		 WHERE tenant_id = ? AND id > ?
		 ORDER BY id ASC LIMIT ?`,
		tenantID,
		afterID,
		limit,
	).Scan(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) ListStatusByIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]domain.StatusRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []domain.StatusRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, plan_status FROM customers WHERE tenant_id = ? AND id IN ?`,
		tenantID,
		ids,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListIDsAfter(ctx context.Context, db *gorm.DB, tenantID, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM customers
		 WHERE tenant_id = ? AND id > ?
		 ORDER BY id ASC LIMIT ?`,
		tenantID,
		afterID,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) UpdatePlanStatusBatch(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID, status string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE customers SET plan_status = ?, updated_at = ?
		 WHERE tenant_id = ? AND id IN ? AND plan_status <> ?`,
		status,
		time.Now().UTC(),
		tenantID,
		ids,
		status,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) UpdateProviderCustomerID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, providerCustomerID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET provider_customer_id = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		providerCustomerID,
		time.Now().UTC(),
		tenantID,
		id,
	).Error
}

func (r *repo) UpdateNotificationBlock(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, blocked bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET notification_blocked = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		blocked,
		time.Now().UTC(),
		tenantID,
		id,
	).Error
}

func (r *repo) UpdateNotificationChannel(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, channel string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET notification_channel = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		channel,
		time.Now().UTC(),
		tenantID,
		id,
	).Error
}
