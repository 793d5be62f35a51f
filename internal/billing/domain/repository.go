package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindReceivableByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Receivable, error)
	FindReceivableByProviderPaymentID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, providerPaymentID string) (*Receivable, error)
	// FindOpenReceivableBySubscription returns the open receivable with the
	// nearest due date for a provider subscription, or nil.
	FindOpenReceivableBySubscription(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, providerSubscriptionID string) (*Receivable, error)
	// UpdateReceivableBilling persists status and provider-side fields.
	UpdateReceivableBilling(ctx context.Context, db *gorm.DB, rec *Receivable) error
	// InsertPaymentOnce inserts a payment row unless one already exists for
	// the same provider payment id. Reports whether a row was written.
	InsertPaymentOnce(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	HasCommission(ctx context.Context, db *gorm.DB, tenantID, customerID snowflake.ID) (bool, error)
	InsertCommission(ctx context.Context, db *gorm.DB, commission *Commission) error
	InsertExpense(ctx context.Context, db *gorm.DB, expense *Expense) error
}
