package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	PlanStatusActive    = "ACTIVE"
	PlanStatusSuspended = "SUSPENDED"
	PlanStatusCanceled  = "CANCELED"
)

// Customer is the payer (titular) of a benefits plan.
type Customer struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID            snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	Name                string        `gorm:"not null" json:"name"`
	Email               string        `json:"email,omitempty"`
	Phone               string        `json:"phone,omitempty"`
	PlanStatus          string        `gorm:"not null;default:ACTIVE" json:"plan_status"`
	ProviderCustomerID  string        `json:"provider_customer_id,omitempty"`
	NotificationBlocked bool          `gorm:"not null;default:false" json:"notification_blocked"`
	NotificationChannel string        `json:"notification_channel,omitempty"`
	ReferrerID          *snowflake.ID `json:"referrer_id,omitempty"`
	ReferralRate        float64       `gorm:"not null;default:0" json:"referral_rate"`
	CreatedAt           time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }
