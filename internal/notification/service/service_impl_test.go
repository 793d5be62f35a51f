package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beneflow/beneflow/internal/clock"
	"github.com/beneflow/beneflow/internal/config"
	customerdomain "github.com/beneflow/beneflow/internal/customer/domain"
	customerrepo "github.com/beneflow/beneflow/internal/customer/repository"
	notificationdomain "github.com/beneflow/beneflow/internal/notification/domain"
	notificationrepo "github.com/beneflow/beneflow/internal/notification/repository"
	notificationservice "github.com/beneflow/beneflow/internal/notification/service"
	"github.com/beneflow/beneflow/internal/providers/notify"
	rulesrepo "github.com/beneflow/beneflow/internal/rules/repository"
	rulesservice "github.com/beneflow/beneflow/internal/rules/service"
	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testTenant int64 = 5001

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	Channel string
	Msg     notify.Message
}

type recordingDispatcher struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool
}

func (d *recordingDispatcher) Send(_ context.Context, channel string, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFor[msg.Recipient] {
		return errors.New("downstream unavailable")
	}
	d.sent = append(d.sent, sentMessage{Channel: channel, Msg: msg})
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE customers (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			plan_status TEXT NOT NULL DEFAULT 'ACTIVE',
			provider_customer_id TEXT NOT NULL DEFAULT '',
			notification_blocked BOOLEAN NOT NULL DEFAULT FALSE,
			notification_channel TEXT NOT NULL DEFAULT '',
			referrer_id BIGINT,
			referral_rate NUMERIC NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE receivables (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			customer_id BIGINT,
			value NUMERIC NOT NULL,
			due_date DATE NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			billing_type TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			provider_payment_id TEXT,
			provider_subscription_id TEXT,
			invoice_url TEXT NOT NULL DEFAULT '',
			pix_qr_code TEXT NOT NULL DEFAULT '',
			pix_expiration TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE business_rules (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL UNIQUE,
			suspension_threshold_days INT,
			grace_period_days INT,
			default_channel TEXT,
			notification_frequency_minutes INT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE notification_schedules (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL UNIQUE,
			frequency_minutes INT NOT NULL,
			channel TEXT NOT NULL DEFAULT 'whatsapp',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			last_run_at DATETIME,
			next_run_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE notification_logs (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			schedule_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			batch_id TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T, db *gorm.DB, clk clock.Clock, dispatcher notify.Dispatcher) notificationdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(30)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	holder, err := config.NewNotifyConfigHolder()
	if err != nil {
		t.Fatalf("notify config: %v", err)
	}

	cfg := config.Config{
		DefaultChannel:          "whatsapp",
		DefaultSuspensionDays:   90,
		DefaultFrequencyMinutes: 1440,
		NotificationLogPageMax:  200,
	}
	rulesSvc := rulesservice.New(rulesservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Cfg:  cfg,
		Repo: rulesrepo.Provide(),
	})
	return notificationservice.New(notificationservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Cfg:          cfg,
		NotifyCfg:    holder,
		Repo:         notificationrepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
		Rules:        rulesSvc,
		Dispatcher:   dispatcher,
	})
}

func tenantCtx() context.Context {
	return tenantctx.WithTenantID(context.Background(), testTenant)
}

func seedCustomer(t *testing.T, db *gorm.DB, id int64, email, phone, channel string, blocked bool) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO customers (id, tenant_id, name, email, phone, notification_channel, notification_blocked)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, testTenant, fmt.Sprintf("customer-%d", id), email, phone, channel, blocked,
	).Error
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
}

func seedOpenReceivable(t *testing.T, db *gorm.DB, id, customerID int64, value float64, due string) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO receivables (id, tenant_id, customer_id, value, due_date, status)
		 VALUES (?, ?, ?, ?, ?, 'OVERDUE')`,
		id, testTenant, customerID, value, due,
	).Error
	if err != nil {
		t.Fatalf("seed receivable: %v", err)
	}
}

func TestDashboardCreatesScheduleLazily(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db, clock.NewFakeClock(now), &recordingDispatcher{})

	seedCustomer(t, db, 1, "a@example.com", "551100000001", "", false)
	seedOpenReceivable(t, db, 11, 1, 100, "2025-05-20")
	seedOpenReceivable(t, db, 12, 1, 50, "2025-05-25")

	dashboard, err := svc.Dashboard(tenantCtx())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dashboard.Schedule.FrequencyMinutes != 1440 {
		t.Fatalf("expected default frequency, got %+v", dashboard.Schedule)
	}
	if dashboard.TotalCustomers != 1 || dashboard.TotalOpen != 2 || dashboard.TotalDue != 150 {
		t.Fatalf("unexpected totals: %+v", dashboard)
	}
	if dashboard.SecondsToNextRun <= 0 {
		t.Fatalf("expected positive seconds to next run, got %d", dashboard.SecondsToNextRun)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM notification_schedules WHERE tenant_id = ?`, testTenant).Scan(&count).Error; err != nil {
		t.Fatalf("count schedules: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 schedule, got %d", count)
	}
}

func TestDashboardCountsReachability(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db, clock.NewFakeClock(now), &recordingDispatcher{})

	seedCustomer(t, db, 50, "", "551100000050", "", false)
	seedCustomer(t, db, 51, "", "551100000051", "", true)
	seedCustomer(t, db, 52, "only@example.com", "", "", false)
	for i, customerID := range []int64{50, 51, 52} {
		seedOpenReceivable(t, db, int64(60+i), customerID, 100, "2025-05-10")
	}

	dashboard, err := svc.Dashboard(tenantCtx())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dashboard.TotalCustomers != 3 {
		t.Fatalf("expected 3 customers, got %+v", dashboard)
	}
	// Customer 52 resolves to whatsapp (no override) but has no phone.
	if dashboard.EligibleCustomers != 1 || dashboard.BlockedCustomers != 1 || dashboard.NoContactCustomers != 1 {
		t.Fatalf("unexpected reachability counts: %+v", dashboard)
	}
}

func TestDispatchDueNotYetDueIsNoop(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &recordingDispatcher{}
	svc := newService(t, db, clock.NewFakeClock(now), dispatcher)

	seedCustomer(t, db, 2, "", "551100000002", "", false)
	seedOpenReceivable(t, db, 21, 2, 80, "2025-05-01")

	// The lazily created schedule has nextRun = now + frequency.
	result, err := svc.DispatchDue(tenantCtx(), false)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Ran {
		t.Fatalf("expected no-op before next run, got %+v", result)
	}
	if len(dispatcher.sent) != 0 {
		t.Fatalf("expected no sends, got %d", len(dispatcher.sent))
	}

	var logCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM notification_logs`).Scan(&logCount).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if logCount != 0 {
		t.Fatalf("expected no logs, got %d", logCount)
	}
}

func TestDispatchDueRunsWhenDue(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &recordingDispatcher{}
	clk := clock.NewFakeClock(now)
	svc := newService(t, db, clk, dispatcher)

	seedCustomer(t, db, 3, "", "551100000003", "", false)
	seedOpenReceivable(t, db, 31, 3, 60, "2025-05-01")

	if _, err := svc.Dashboard(tenantCtx()); err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	clk.Advance(25 * time.Hour)
	result, err := svc.DispatchDue(tenantCtx(), false)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !result.Ran || result.Sent != 1 {
		t.Fatalf("expected dispatch to run, got %+v", result)
	}
}

func TestDispatchForceAppliesPrecedenceAndSkips(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &recordingDispatcher{failFor: map[string]bool{"551100000099": true}}
	svc := newService(t, db, clock.NewFakeClock(now), dispatcher)

	seedCustomer(t, db, 10, "mail@example.com", "551100000010", "email", false)
	seedCustomer(t, db, 11, "", "551100000011", "", false)
	seedCustomer(t, db, 12, "", "551100000012", "", true)
	seedCustomer(t, db, 13, "", "", "", false)
	seedCustomer(t, db, 14, "", "551100000099", "", false)
	for i, customerID := range []int64{10, 11, 12, 13, 14} {
		seedOpenReceivable(t, db, int64(40+i), customerID, 100, "2025-05-10")
	}

	result, err := svc.DispatchDue(tenantCtx(), true)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !result.Ran || result.Sent != 2 || result.Skipped != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	channels := map[string]string{}
	for _, sent := range dispatcher.sent {
		channels[sent.Msg.Recipient] = sent.Channel
	}
	if channels["mail@example.com"] != notificationdomain.ChannelEmail {
		t.Fatalf("customer override to email not honored: %+v", channels)
	}
	if channels["551100000011"] != notificationdomain.ChannelWhatsapp {
		t.Fatalf("expected whatsapp fallback: %+v", channels)
	}

	var statuses []string
	if err := db.Raw(
		`SELECT status FROM notification_logs WHERE tenant_id = ? ORDER BY customer_id ASC`,
		testTenant,
	).Scan(&statuses).Error; err != nil {
		t.Fatalf("read logs: %v", err)
	}
	want := []string{
		notificationdomain.LogStatusSent,
		notificationdomain.LogStatusSent,
		notificationdomain.LogStatusSkipped,
		notificationdomain.LogStatusSkipped,
		notificationdomain.LogStatusFailed,
	}
	if len(statuses) != len(want) {
		t.Fatalf("expected %d logs, got %d", len(want), len(statuses))
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("log %d: expected %s, got %s", i, want[i], statuses[i])
		}
	}

	var batchIDs []string
	if err := db.Raw(`SELECT DISTINCT batch_id FROM notification_logs`).Scan(&batchIDs).Error; err != nil {
		t.Fatalf("read batch ids: %v", err)
	}
	if len(batchIDs) != 1 {
		t.Fatalf("expected a single batch id, got %v", batchIDs)
	}
	parts := strings.Split(batchIDs[0], "_")
	if len(parts) != 2 || parts[1] != fmt.Sprintf("%d", now.Unix()) {
		t.Fatalf("unexpected batch id format: %s", batchIDs[0])
	}

	var runs struct {
		LastRunAt string
		NextRunAt string
	}
	if err := db.Raw(
		`SELECT last_run_at, next_run_at FROM notification_schedules WHERE tenant_id = ?`,
		testTenant,
	).Scan(&runs).Error; err != nil {
		t.Fatalf("read schedule: %v", err)
	}
	if runs.NextRunAt == "" || runs.NextRunAt <= runs.LastRunAt {
		t.Fatalf("expected schedule advanced, got last=%q next=%q", runs.LastRunAt, runs.NextRunAt)
	}
}

func TestDispatchRollsBackLogsWhenAdvanceFails(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &recordingDispatcher{}
	svc := newService(t, db, clock.NewFakeClock(now), dispatcher)

	seedCustomer(t, db, 70, "", "551100000070", "", false)
	seedOpenReceivable(t, db, 71, 70, 45, "2025-05-01")

	// Create the schedule first, then make every later update to it abort.
	if _, err := svc.Dashboard(tenantCtx()); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	err := db.Exec(
		`CREATE TRIGGER block_schedule_update BEFORE UPDATE ON notification_schedules
		 BEGIN SELECT RAISE(ABORT, 'schedule locked'); END`,
	).Error
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := svc.DispatchDue(tenantCtx(), true); err == nil {
		t.Fatal("expected dispatch to fail when the schedule cannot advance")
	}

	// The run's log rows must roll back with the failed schedule advance.
	var logCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM notification_logs`).Scan(&logCount).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if logCount != 0 {
		t.Fatalf("expected no logs after rollback, got %d", logCount)
	}
}

func TestUpdateScheduleValidates(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db, clock.NewFakeClock(now), &recordingDispatcher{})

	badChannel := "sms"
	if _, err := svc.UpdateSchedule(tenantCtx(), notificationdomain.UpdateScheduleRequest{Channel: &badChannel}); !errors.Is(err, notificationdomain.ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}

	badFreq := 0
	if _, err := svc.UpdateSchedule(tenantCtx(), notificationdomain.UpdateScheduleRequest{FrequencyMinutes: &badFreq}); !errors.Is(err, notificationdomain.ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}

	freq := 60
	channel := "email"
	active := false
	schedule, err := svc.UpdateSchedule(tenantCtx(), notificationdomain.UpdateScheduleRequest{
		FrequencyMinutes: &freq,
		Channel:          &channel,
		Active:           &active,
	})
	if err != nil {
		t.Fatalf("update schedule: %v", err)
	}
	if schedule.FrequencyMinutes != 60 || schedule.Channel != "email" || schedule.Active {
		t.Fatalf("unexpected schedule: %+v", schedule)
	}
}

func TestUpdateCustomerPreferences(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db, clock.NewFakeClock(now), &recordingDispatcher{})

	seedCustomer(t, db, 20, "", "551100000020", "", false)

	if err := svc.UpdateCustomerBlock(tenantCtx(), snowflake.ID(20), true); err != nil {
		t.Fatalf("block: %v", err)
	}
	var blocked bool
	if err := db.Raw(`SELECT notification_blocked FROM customers WHERE id = ?`, 20).Scan(&blocked).Error; err != nil {
		t.Fatalf("read blocked: %v", err)
	}
	if !blocked {
		t.Fatal("expected customer blocked")
	}

	if err := svc.UpdateCustomerChannel(tenantCtx(), snowflake.ID(20), "sms"); !errors.Is(err, notificationdomain.ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}
	if err := svc.UpdateCustomerChannel(tenantCtx(), snowflake.ID(20), "email"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	if err := svc.UpdateCustomerBlock(tenantCtx(), snowflake.ID(999), true); !errors.Is(err, customerdomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetLogsIsCapped(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db, clock.NewFakeClock(now), &recordingDispatcher{})

	for i := 0; i < 250; i++ {
		err := db.Exec(
			`INSERT INTO notification_logs (id, tenant_id, schedule_id, customer_id, channel, status, batch_id)
			 VALUES (?, ?, ?, ?, 'whatsapp', 'SENT', 'b1')`,
			1000+i, testTenant, 1, 1,
		).Error
		if err != nil {
			t.Fatalf("seed log: %v", err)
		}
	}

	logs, err := svc.GetLogs(tenantCtx(), 500)
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	if len(logs) != 200 {
		t.Fatalf("expected cap of 200 logs, got %d", len(logs))
	}
}
