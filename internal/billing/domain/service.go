package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service reconciles receivables against the payment provider: webhook-driven
// state transitions, on-demand status refresh, and the manual settlement
// operations the back office uses when the provider is out of the loop.
type Service interface {
	// EnsureCustomer creates the customer on the provider side when missing.
	// Best effort: gateway failures are logged, never returned.
	EnsureCustomer(ctx context.Context, customerID snowflake.ID) error

	// EnsurePayment creates (or with force, re-creates) the provider payment
	// backing a receivable. Idempotent by provider payment id.
	EnsurePayment(ctx context.Context, receivableID snowflake.ID, billingType string, force bool) (*Receivable, error)

	// ApplyWebhook applies one provider event inside a single transaction.
	// Unmatched events commit nothing and return Matched=false without error.
	ApplyWebhook(ctx context.Context, event WebhookEvent) (ApplyResult, error)

	// RefreshPaymentStatus re-reads the provider record for a receivable and
	// applies the result through the webhook path.
	RefreshPaymentStatus(ctx context.Context, receivableID snowflake.ID) (ApplyResult, error)

	// SettleManually marks a receivable RECEIVED and records a manual
	// payment row.
	SettleManually(ctx context.Context, receivableID snowflake.ID) (ApplyResult, error)

	// Chargeback reverses a RECEIVED receivable to CANCELED. The payment
	// ledger row is kept; only the receivable flips.
	Chargeback(ctx context.Context, receivableID snowflake.ID) (ApplyResult, error)
}
