package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type UpdateScheduleRequest struct {
	FrequencyMinutes *int    `json:"frequency_minutes,omitempty"`
	Channel          *string `json:"channel,omitempty"`
	Active           *bool   `json:"active,omitempty"`
}

// Service runs the per-tenant dunning loop: dashboard aggregation, due-gated
// dispatch with audit logging, and the schedule / customer preference
// mutations behind it.
type Service interface {
	Dashboard(ctx context.Context) (Dashboard, error)
	// DispatchDue sends reminders for every customer with open receivables
	// when the schedule is due. force bypasses the due check.
	DispatchDue(ctx context.Context, force bool) (DispatchResult, error)
	UpdateSchedule(ctx context.Context, req UpdateScheduleRequest) (Schedule, error)
	UpdateCustomerBlock(ctx context.Context, customerID snowflake.ID, blocked bool) error
	UpdateCustomerChannel(ctx context.Context, customerID snowflake.ID, channel string) error
	GetLogs(ctx context.Context, limit int) ([]Log, error)
}

var (
	ErrInvalidChannel   = errors.New("invalid_channel")
	ErrInvalidFrequency = errors.New("invalid_frequency")
)
