package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions recorded for manual operations. Webhook-driven transitions are
// traceable through payments and notification logs and are not duplicated
// here.
const (
	ActionReceivableSettle     = "receivable.settle"
	ActionReceivableChargeback = "receivable.chargeback"
	ActionReceivableRefresh    = "receivable.refresh"
	ActionPaymentEnsure        = "receivable.ensure_payment"
	ActionScheduleUpdate       = "notification.schedule_update"
	ActionCustomerBlock        = "customer.notification_block"
	ActionCustomerChannel      = "customer.notification_channel"
)

type Entry struct {
	ID         snowflake.ID   `gorm:"column:id;primaryKey"`
	TenantID   snowflake.ID   `gorm:"column:tenant_id"`
	Action     string         `gorm:"column:action"`
	TargetType string         `gorm:"column:target_type"`
	TargetID   string         `gorm:"column:target_id"`
	Metadata   datatypes.JSON `gorm:"column:metadata"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
}

func (Entry) TableName() string {
	return "audit_logs"
}

type ListFilter struct {
	Action     string
	TargetType string
	Limit      int
}

// Recorder persists an audit trail of manual operations. Record is
// best-effort; failures must never abort the operation being audited.
type Recorder interface {
	Record(ctx context.Context, action, targetType, targetID string, metadata map[string]any)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListFilter) ([]Entry, error)
}
