package repository

import (
	"context"
	"time"

	"github.com/beneflow/beneflow/internal/billing/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const receivableColumns = `id, tenant_id, customer_id, value, due_date, status,
	billing_type, description, provider_payment_id, provider_subscription_id,
	invoice_url, pix_qr_code, pix_expiration, created_at, updated_at`

func (r *repo) FindReceivableByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Receivable, error) {
	var rec domain.Receivable
	err := db.WithContext(ctx).Raw(
		`SELECT `+receivableColumns+` FROM receivables WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) FindReceivableByProviderPaymentID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, providerPaymentID string) (*domain.Receivable, error) {
	var rec domain.Receivable
	err := db.WithContext(ctx).Raw(
		`SELECT `+receivableColumns+` FROM receivables
		 WHERE tenant_id = ? AND provider_payment_id = ?
		 ORDER BY id DESC LIMIT 1`,
		tenantID,
		providerPaymentID,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) FindOpenReceivableBySubscription(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, providerSubscriptionID string) (*domain.Receivable, error) {
	var rec domain.Receivable
	err := db.WithContext(ctx).Raw(
		`SELECT `+receivableColumns+` FROM receivables
		 WHERE tenant_id = ? AND provider_subscription_id = ? AND status IN (?, ?)
		 ORDER BY due_date ASC, id ASC LIMIT 1`,
		tenantID,
		providerSubscriptionID,
		domain.StatusPending,
		domain.StatusOverdue,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) UpdateReceivableBilling(ctx context.Context, db *gorm.DB, rec *domain.Receivable) error {
	return db.WithContext(ctx).Exec(
		`UPDATE receivables SET
			status = ?,
			value = ?,
			due_date = ?,
			billing_type = ?,
			provider_payment_id = ?,
			provider_subscription_id = ?,
			invoice_url = ?,
			pix_qr_code = ?,
			pix_expiration = ?,
			updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		rec.Status,
		rec.Value,
		rec.DueDate,
		rec.BillingType,
		rec.ProviderPaymentID,
		rec.ProviderSubscriptionID,
		rec.InvoiceURL,
		rec.PixQrCode,
		rec.PixExpiration,
		time.Now().UTC(),
		rec.TenantID,
		rec.ID,
	).Error
}

func (r *repo) InsertPaymentOnce(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments
			(id, tenant_id, receivable_id, customer_id, value, method, provider_payment_id, paid_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider_payment_id) WHERE provider_payment_id IS NOT NULL DO NOTHING`,
		payment.ID,
		payment.TenantID,
		payment.ReceivableID,
		payment.CustomerID,
		payment.Value,
		payment.Method,
		payment.ProviderPaymentID,
		payment.PaidAt,
		time.Now().UTC(),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) HasCommission(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM commissions WHERE tenant_id = ? AND customer_id = ?`,
		tenantID,
		customerID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertCommission(ctx context.Context, db *gorm.DB, commission *domain.Commission) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO commissions
			(id, tenant_id, customer_id, salesperson_id, rate, amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		commission.ID,
		commission.TenantID,
		commission.CustomerID,
		commission.SalespersonID,
		commission.Rate,
		commission.Amount,
		commission.Status,
		time.Now().UTC(),
	).Error
}

func (r *repo) InsertExpense(ctx context.Context, db *gorm.DB, expense *domain.Expense) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO expenses
			(id, tenant_id, commission_id, description, amount, due_date, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID,
		expense.TenantID,
		expense.CommissionID,
		expense.Description,
		expense.Amount,
		expense.DueDate,
		expense.Status,
		time.Now().UTC(),
	).Error
}
