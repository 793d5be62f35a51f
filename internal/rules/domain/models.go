package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BusinessRules is tenant-level billing configuration. Columns are nullable
// so unset values fall through to the application defaults.
type BusinessRules struct {
	ID                           snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID                     snowflake.ID `gorm:"not null;uniqueIndex" json:"tenant_id"`
	SuspensionThresholdDays      *int         `json:"suspension_threshold_days,omitempty"`
	GracePeriodDays              *int         `json:"grace_period_days,omitempty"`
	DefaultChannel               string       `json:"default_channel,omitempty"`
	NotificationFrequencyMinutes *int         `json:"notification_frequency_minutes,omitempty"`
	CreatedAt                    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt                    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (BusinessRules) TableName() string { return "business_rules" }

// Resolved carries the rules after merging with application defaults.
type Resolved struct {
	SuspensionThresholdDays      int
	GracePeriodDays              int
	DefaultChannel               string
	NotificationFrequencyMinutes int
}
