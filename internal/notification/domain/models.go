package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsapp = "whatsapp"
)

const (
	LogStatusSent    = "SENT"
	LogStatusFailed  = "FAILED"
	LogStatusSkipped = "SKIPPED"
)

// Schedule is the per-tenant dispatch cadence. One row per tenant, created
// lazily on first dashboard or dispatch access.
type Schedule struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID         snowflake.ID `gorm:"not null;uniqueIndex" json:"tenant_id"`
	FrequencyMinutes int          `gorm:"not null" json:"frequency_minutes"`
	Channel          string       `gorm:"not null;default:whatsapp" json:"channel"`
	Active           bool         `gorm:"not null;default:true" json:"active"`
	LastRunAt        *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt        *time.Time   `json:"next_run_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Schedule) TableName() string { return "notification_schedules" }

// Log is one audit row per customer per dispatch run. Rows of the same run
// share a batch id.
type Log struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID   `gorm:"not null" json:"tenant_id"`
	ScheduleID snowflake.ID   `gorm:"not null" json:"schedule_id"`
	CustomerID snowflake.ID   `gorm:"not null" json:"customer_id"`
	Channel    string         `gorm:"not null" json:"channel"`
	Status     string         `gorm:"not null" json:"status"`
	Reason     string         `json:"reason,omitempty"`
	BatchID    string         `gorm:"not null" json:"batch_id"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Log) TableName() string { return "notification_logs" }

// CustomerSummary aggregates a customer's open receivables.
type CustomerSummary struct {
	CustomerID          snowflake.ID `json:"customer_id"`
	Name                string       `json:"name"`
	Email               string       `json:"email,omitempty"`
	Phone               string       `json:"phone,omitempty"`
	NotificationBlocked bool         `json:"notification_blocked"`
	NotificationChannel string       `json:"notification_channel,omitempty"`
	OpenCount           int          `json:"open_count"`
	TotalDue            float64      `json:"total_due"`
	NearestDue          time.Time    `json:"nearest_due"`
}

// OpenItem is one open receivable line used for itemized metadata.
type OpenItem struct {
	CustomerID  snowflake.ID `json:"-"`
	Description string       `json:"description,omitempty"`
	Value       float64      `json:"value"`
	DueDate     time.Time    `json:"due_date"`
}

type Dashboard struct {
	Schedule           Schedule          `json:"schedule"`
	SecondsToNextRun   int64             `json:"seconds_to_next_run"`
	Customers          []CustomerSummary `json:"customers"`
	TotalCustomers     int               `json:"total_customers"`
	EligibleCustomers  int               `json:"eligible_customers"`
	BlockedCustomers   int               `json:"blocked_customers"`
	NoContactCustomers int               `json:"no_contact_customers"`
	TotalOpen          int               `json:"total_open"`
	TotalDue           float64           `json:"total_due"`
}

// DispatchResult reports one dispatch run. Ran is false when the schedule was
// not yet due (or inactive) and force was not set.
type DispatchResult struct {
	Ran     bool   `json:"ran"`
	BatchID string `json:"batch_id,omitempty"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

// ResolveChannel applies the precedence customer > schedule > global default.
// An unset or unrecognized value at one level falls through to the next;
// whatsapp is the last resort when no level yields a known channel.
func ResolveChannel(customerChannel, scheduleChannel, globalDefault string) string {
	for _, raw := range []string{customerChannel, scheduleChannel, globalDefault} {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case ChannelEmail:
			return ChannelEmail
		case ChannelWhatsapp:
			return ChannelWhatsapp
		}
	}
	return ChannelWhatsapp
}
