package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/beneflow/beneflow/internal/notification/domain"
	pkgdb "github.com/beneflow/beneflow/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindSchedule(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Schedule, error) {
	var schedule domain.Schedule
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, frequency_minutes, channel, active,
			last_run_at, next_run_at, created_at, updated_at
		 FROM notification_schedules WHERE tenant_id = ?`,
		tenantID,
	).Scan(&schedule).Error
	if err != nil {
		return nil, err
	}
	if schedule.ID == 0 {
		return nil, nil
	}
	return &schedule, nil
}

func (r *repo) InsertSchedule(ctx context.Context, db *gorm.DB, schedule *domain.Schedule) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`INSERT INTO notification_schedules
			(id, tenant_id, frequency_minutes, channel, active, last_run_at, next_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.TenantID,
		schedule.FrequencyMinutes,
		schedule.Channel,
		schedule.Active,
		schedule.LastRunAt,
		schedule.NextRunAt,
		now,
		now,
	).Error
}

func (r *repo) UpdateSchedule(ctx context.Context, db *gorm.DB, schedule *domain.Schedule) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_schedules SET
			frequency_minutes = ?, channel = ?, active = ?,
			last_run_at = ?, next_run_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		schedule.FrequencyMinutes,
		schedule.Channel,
		schedule.Active,
		schedule.LastRunAt,
		schedule.NextRunAt,
		time.Now().UTC(),
		schedule.TenantID,
		schedule.ID,
	).Error
}

func (r *repo) AdvanceSchedule(ctx context.Context, db *gorm.DB, tenantID, scheduleID snowflake.ID, lastRun, nextRun time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_schedules SET last_run_at = ?, next_run_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		lastRun,
		nextRun,
		time.Now().UTC(),
		tenantID,
		scheduleID,
	).Error
}

// summaryRow holds nearest_due as text: MIN(due_date) is an expression, so
// the sqlite driver cannot map it to time.Time from the column decltype.
type summaryRow struct {
	CustomerID          snowflake.ID
	Name                string
	Email               string
	Phone               string
	NotificationBlocked bool
	NotificationChannel string
	OpenCount           int
	TotalDue            float64
	NearestDue          string
}

func (r *repo) ListOpenSummaries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.CustomerSummary, error) {
	var raw []summaryRow
	err := db.WithContext(ctx).Raw(
		`SELECT c.id AS customer_id, c.name, c.email, c.phone,
			c.notification_blocked, c.notification_channel,
			COUNT(r.id) AS open_count,
			SUM(r.value) AS total_due,
			MIN(r.due_date) AS nearest_due
		 FROM receivables r
		 JOIN customers c ON c.id = r.customer_id AND c.tenant_id = r.tenant_id
		 WHERE r.tenant_id = ? AND r.status IN ('PENDING', 'OVERDUE')
		 GROUP BY c.id, c.name, c.email, c.phone, c.notification_blocked, c.notification_channel
		 ORDER BY nearest_due ASC, c.id ASC`,
		tenantID,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.CustomerSummary, 0, len(raw))
	for _, row := range raw {
		nearest, err := pkgdb.ParseScannedDate(row.NearestDue)
		if err != nil {
			return nil, fmt.Errorf("nearest due for customer %d: %w", row.CustomerID.Int64(), err)
		}
		summaries = append(summaries, domain.CustomerSummary{
			CustomerID:          row.CustomerID,
			Name:                row.Name,
			Email:               row.Email,
			Phone:               row.Phone,
			NotificationBlocked: row.NotificationBlocked,
			NotificationChannel: row.NotificationChannel,
			OpenCount:           row.OpenCount,
			TotalDue:            row.TotalDue,
			NearestDue:          nearest,
		})
	}
	return summaries, nil
}

func (r *repo) ListOpenItems(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.OpenItem, error) {
	var items []domain.OpenItem
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, description, value, due_date
		 FROM receivables
		 WHERE tenant_id = ? AND customer_id IS NOT NULL AND status IN ('PENDING', 'OVERDUE')
		 ORDER BY customer_id ASC, due_date ASC`,
		tenantID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActiveScheduleTenantIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id FROM notification_schedules WHERE active = ? ORDER BY tenant_id ASC`,
		true,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) InsertLogs(ctx context.Context, db *gorm.DB, logs []*domain.Log) error {
	if len(logs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(logs).Error
}

func (r *repo) ListLogs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]domain.Log, error) {
	var logs []domain.Log
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, schedule_id, customer_id, channel, status,
			reason, batch_id, metadata, created_at
		 FROM notification_logs
		 WHERE tenant_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		tenantID,
		limit,
	).Scan(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
