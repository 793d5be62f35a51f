package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Credentials holds a tenant's provider API access. An empty APIKey means the
// integration is disabled for that tenant.
type Credentials struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID `gorm:"not null;uniqueIndex" json:"tenant_id"`
	APIKey        string       `gorm:"column:api_key" json:"-"`
	WebhookSecret string       `json:"-"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Credentials) TableName() string { return "gateway_credentials" }

func (c *Credentials) Enabled() bool {
	return c != nil && c.APIKey != ""
}

// Wire types below follow the provider's JSON field naming.

type CreateCustomerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email,omitempty"`
	CpfCnpj              string `json:"cpfCnpj,omitempty"`
	Phone                string `json:"phone,omitempty"`
	MobilePhone          string `json:"mobilePhone,omitempty"`
	ExternalReference    string `json:"externalReference,omitempty"`
	NotificationDisabled bool   `json:"notificationDisabled"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CreatePaymentRequest struct {
	Customer          string  `json:"customer"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"dueDate"`
	Description       string  `json:"description,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

type UpdatePaymentRequest struct {
	Value       *float64 `json:"value,omitempty"`
	DueDate     *string  `json:"dueDate,omitempty"`
	Description *string  `json:"description,omitempty"`
	BillingType *string  `json:"billingType,omitempty"`
}

type Payment struct {
	ID                string  `json:"id"`
	Customer          string  `json:"customer"`
	Subscription      string  `json:"subscription,omitempty"`
	Status            string  `json:"status"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"dueDate"`
	Description       string  `json:"description,omitempty"`
	BillingType       string  `json:"billingType,omitempty"`
	InvoiceURL        string  `json:"invoiceUrl,omitempty"`
	PixQrCode         string  `json:"pixQrCode,omitempty"`
	PixExpirationDate string  `json:"pixExpirationDate,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

type ListPaymentsFilter struct {
	Customer          string
	Subscription      string
	ExternalReference string
	Status            string
	Limit             int
}

type ListPaymentsResponse struct {
	Data       []Payment `json:"data"`
	TotalCount int       `json:"totalCount"`
}
