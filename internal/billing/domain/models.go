package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusPending  = "PENDING"
	StatusOverdue  = "OVERDUE"
	StatusReceived = "RECEIVED"
	StatusCanceled = "CANCELED"
)

// Receivable is one expected charge against a customer. ProviderPaymentID is
// set once the charge exists on the payment provider side.
type Receivable struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID               snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	CustomerID             *snowflake.ID `json:"customer_id,omitempty"`
	Value                  float64       `gorm:"not null" json:"value"`
	DueDate                time.Time     `gorm:"not null" json:"due_date"`
	Status                 string        `gorm:"not null;default:PENDING" json:"status"`
	BillingType            string        `json:"billing_type,omitempty"`
	Description            string        `json:"description,omitempty"`
	ProviderPaymentID      *string       `json:"provider_payment_id,omitempty"`
	ProviderSubscriptionID *string       `json:"provider_subscription_id,omitempty"`
	InvoiceURL             string        `json:"invoice_url,omitempty"`
	PixQrCode              string        `json:"pix_qr_code,omitempty"`
	PixExpiration          string        `json:"pix_expiration,omitempty"`
	CreatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Receivable) TableName() string { return "receivables" }

func (r *Receivable) Open() bool {
	return r.Status == StatusPending || r.Status == StatusOverdue
}

// Payment is the append-only settlement ledger. One row per confirmed
// provider payment, deduplicated by provider payment id.
type Payment struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	ReceivableID      snowflake.ID  `gorm:"not null" json:"receivable_id"`
	CustomerID        *snowflake.ID `json:"customer_id,omitempty"`
	Value             float64       `gorm:"not null" json:"value"`
	Method            string        `json:"method,omitempty"`
	ProviderPaymentID *string       `json:"provider_payment_id,omitempty"`
	PaidAt            time.Time     `gorm:"not null" json:"paid_at"`
	CreatedAt         time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

// Commission records the one-time referral bonus owed to the salesperson who
// brought a customer in. At most one row per customer, enforced by a unique
// index on customer_id.
type Commission struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID `gorm:"not null" json:"tenant_id"`
	CustomerID    snowflake.ID `gorm:"not null;uniqueIndex" json:"customer_id"`
	SalespersonID snowflake.ID `gorm:"not null" json:"salesperson_id"`
	Rate          float64      `gorm:"not null" json:"rate"`
	Amount        float64      `gorm:"not null" json:"amount"`
	Status        string       `gorm:"not null;default:PENDING" json:"status"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Commission) TableName() string { return "commissions" }

// Expense mirrors a commission as a payable so the tenant's cash-out view
// stays consistent with commissions granted.
type Expense struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID  `gorm:"not null" json:"tenant_id"`
	CommissionID *snowflake.ID `json:"commission_id,omitempty"`
	Description  string        `json:"description,omitempty"`
	Amount       float64       `gorm:"not null" json:"amount"`
	DueDate      time.Time     `gorm:"not null" json:"due_date"`
	Status       string        `gorm:"not null;default:PENDING" json:"status"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Expense) TableName() string { return "expenses" }

// WebhookEvent is the provider's webhook envelope.
type WebhookEvent struct {
	Event   string          `json:"event"`
	Payment *WebhookPayment `json:"payment"`
}

type WebhookPayment struct {
	ID                string  `json:"id"`
	Customer          string  `json:"customer,omitempty"`
	Subscription      string  `json:"subscription,omitempty"`
	Status            string  `json:"status,omitempty"`
	Value             float64 `json:"value,omitempty"`
	BillingType       string  `json:"billingType,omitempty"`
	DueDate           string  `json:"dueDate,omitempty"`
	PaymentDate       string  `json:"paymentDate,omitempty"`
	InvoiceURL        string  `json:"invoiceUrl,omitempty"`
	PixQrCode         string  `json:"pixQrCode,omitempty"`
	PixExpirationDate string  `json:"pixExpirationDate,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

// ApplyResult reports what one webhook application did.
type ApplyResult struct {
	Matched           bool         `json:"matched"`
	ReceivableID      snowflake.ID `json:"receivable_id,omitempty"`
	From              string       `json:"from,omitempty"`
	To                string       `json:"to,omitempty"`
	PaymentCreated    bool         `json:"payment_created"`
	CommissionCreated bool         `json:"commission_created"`
}

// StatusForEvent maps a provider event name to the receivable status it
// drives. The PAYMENT_ prefix is optional and matching is case-insensitive.
func StatusForEvent(event string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(event))
	name = strings.TrimPrefix(name, "payment_")
	switch name {
	case "received", "confirmed", "received_in_cash":
		return StatusReceived, true
	case "overdue":
		return StatusOverdue, true
	case "deleted", "refunded", "chargeback", "chargeback_requested", "canceled":
		return StatusCanceled, true
	case "created", "pending":
		return StatusPending, true
	}
	return "", false
}
