package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/beneflow/beneflow/internal/clock"
	"github.com/beneflow/beneflow/internal/config"
	customerdomain "github.com/beneflow/beneflow/internal/customer/domain"
	customerrepo "github.com/beneflow/beneflow/internal/customer/repository"
	plansyncdomain "github.com/beneflow/beneflow/internal/plansync/domain"
	plansyncrepo "github.com/beneflow/beneflow/internal/plansync/repository"
	plansyncservice "github.com/beneflow/beneflow/internal/plansync/service"
	rulesrepo "github.com/beneflow/beneflow/internal/rules/repository"
	rulesservice "github.com/beneflow/beneflow/internal/rules/service"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testTenant = snowflake.ID(4001)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

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
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T, db *gorm.DB) plansyncdomain.Service {
	t.Helper()

	cfg := config.Config{
		DefaultSuspensionDays:    90,
		DefaultChannel:           "whatsapp",
		DefaultFrequencyMinutes:  1440,
		PlanSyncDefaultBatchSize: 500,
	}
	rulesSvc := rulesservice.New(rulesservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Cfg:  cfg,
		Repo: rulesrepo.Provide(),
	})
	return plansyncservice.New(plansyncservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		Cfg:          cfg,
		Clock:        clock.NewFakeClock(now),
		Repo:         plansyncrepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
		Rules:        rulesSvc,
	})
}

func seedCustomer(t *testing.T, db *gorm.DB, id int64, status string) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO customers (id, tenant_id, name, plan_status) VALUES (?, ?, ?, ?)`,
		id, testTenant, fmt.Sprintf("customer-%d", id), status,
	).Error
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
}

func seedOpenReceivable(t *testing.T, db *gorm.DB, id, customerID int64, dueDaysAgo int) {
	t.Helper()
	due := now.AddDate(0, 0, -dueDaysAgo).Format("2006-01-02")
	err := db.Exec(
		`INSERT INTO receivables (id, tenant_id, customer_id, value, due_date, status)
		 VALUES (?, ?, ?, ?, ?, 'OVERDUE')`,
		id, testTenant, customerID, 100, due,
	).Error
	if err != nil {
		t.Fatalf("seed receivable: %v", err)
	}
}

func planStatus(t *testing.T, db *gorm.DB, id int64) string {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT plan_status FROM customers WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("read plan status: %v", err)
	}
	return status
}

func ids(values ...int64) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(values))
	for _, v := range values {
		out = append(out, snowflake.ID(v))
	}
	return out
}

func TestSyncByIDsSuspendsBeyondThreshold(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	seedCustomer(t, db, 1, customerdomain.PlanStatusActive)
	seedCustomer(t, db, 2, customerdomain.PlanStatusActive)
	seedOpenReceivable(t, db, 11, 1, 91)
	seedOpenReceivable(t, db, 12, 2, 30)

	result, err := svc.SyncByIDs(context.Background(), testTenant, ids(1, 2))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Scanned != 2 || result.Suspended != 1 || result.Reactivated != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := planStatus(t, db, 1); got != customerdomain.PlanStatusSuspended {
		t.Fatalf("customer 1: expected SUSPENDED, got %s", got)
	}
	if got := planStatus(t, db, 2); got != customerdomain.PlanStatusActive {
		t.Fatalf("customer 2: expected ACTIVE, got %s", got)
	}
}

func TestSyncByIDsSuspendsAtExactThreshold(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	seedCustomer(t, db, 7, customerdomain.PlanStatusActive)
	seedCustomer(t, db, 8, customerdomain.PlanStatusActive)
	seedOpenReceivable(t, db, 17, 7, 90)
	seedOpenReceivable(t, db, 18, 8, 89)

	result, err := svc.SyncByIDs(context.Background(), testTenant, ids(7, 8))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Suspended != 1 {
		t.Fatalf("expected suspension exactly at the threshold, got %+v", result)
	}
	if got := planStatus(t, db, 7); got != customerdomain.PlanStatusSuspended {
		t.Fatalf("customer 7 at 90 days: expected SUSPENDED, got %s", got)
	}
	if got := planStatus(t, db, 8); got != customerdomain.PlanStatusActive {
		t.Fatalf("customer 8 at 89 days: expected ACTIVE, got %s", got)
	}
}

func TestSyncByIDsGraceExtendsThreshold(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	if err := db.Exec(
		`INSERT INTO business_rules (id, tenant_id, suspension_threshold_days, grace_period_days) VALUES (?, ?, ?, ?)`,
		1, testTenant, 10, 5,
	).Error; err != nil {
		t.Fatalf("seed rules: %v", err)
	}

	seedCustomer(t, db, 9, customerdomain.PlanStatusActive)
	seedCustomer(t, db, 10, customerdomain.PlanStatusActive)
	seedOpenReceivable(t, db, 19, 9, 15)
	seedOpenReceivable(t, db, 20, 10, 14)

	result, err := svc.SyncByIDs(context.Background(), testTenant, ids(9, 10))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Suspended != 1 {
		t.Fatalf("expected suspension at threshold+grace, got %+v", result)
	}
	if got := planStatus(t, db, 9); got != customerdomain.PlanStatusSuspended {
		t.Fatalf("customer 9 at 15 days: expected SUSPENDED, got %s", got)
	}
	if got := planStatus(t, db, 10); got != customerdomain.PlanStatusActive {
		t.Fatalf("customer 10 inside grace: expected ACTIVE, got %s", got)
	}
}

func TestSyncByIDsReactivatesWhenPaidUp(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	seedCustomer(t, db, 3, customerdomain.PlanStatusSuspended)

	result, err := svc.SyncByIDs(context.Background(), testTenant, ids(3))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Reactivated != 1 {
		t.Fatalf("expected 1 reactivation, got %+v", result)
	}
	if got := planStatus(t, db, 3); got != customerdomain.PlanStatusActive {
		t.Fatalf("expected ACTIVE, got %s", got)
	}
}

func TestSyncByIDsCanceledIsSticky(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	seedCustomer(t, db, 4, customerdomain.PlanStatusCanceled)
	seedOpenReceivable(t, db, 14, 4, 200)

	result, err := svc.SyncByIDs(context.Background(), testTenant, ids(4))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Suspended != 0 || result.Reactivated != 0 {
		t.Fatalf("canceled customer must never transition: %+v", result)
	}
	if got := planStatus(t, db, 4); got != customerdomain.PlanStatusCanceled {
		t.Fatalf("expected CANCELED, got %s", got)
	}
}

func TestSyncByIDsHonorsTenantThreshold(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	if err := db.Exec(
		`INSERT INTO business_rules (id, tenant_id, suspension_threshold_days) VALUES (?, ?, ?)`,
		1, testTenant, 10,
	).Error; err != nil {
		t.Fatalf("seed rules: %v", err)
	}

	seedCustomer(t, db, 5, customerdomain.PlanStatusActive)
	seedOpenReceivable(t, db, 15, 5, 15)

	result, err := svc.SyncByIDs(context.Background(), testTenant, ids(5))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Suspended != 1 {
		t.Fatalf("expected suspension at 15 days with threshold 10, got %+v", result)
	}
}

func TestSyncByIDsIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	seedCustomer(t, db, 6, customerdomain.PlanStatusActive)
	seedOpenReceivable(t, db, 16, 6, 120)

	if _, err := svc.SyncByIDs(context.Background(), testTenant, ids(6)); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	result, err := svc.SyncByIDs(context.Background(), testTenant, ids(6))
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.Suspended != 0 {
		t.Fatalf("second sync must not re-suspend: %+v", result)
	}
}

func TestSyncAllInBatchesCoversAllCustomers(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)

	for i := int64(1); i <= 60; i++ {
		seedCustomer(t, db, 100+i, customerdomain.PlanStatusActive)
		if i%2 == 0 {
			seedOpenReceivable(t, db, 200+i, 100+i, 100)
		}
	}

	// Requested batch size below the floor is clamped to 50, so this runs in
	// two batches.
	result, err := svc.SyncAllInBatches(context.Background(), testTenant, 1)
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if result.Scanned != 60 {
		t.Fatalf("expected 60 scanned, got %+v", result)
	}
	if result.Suspended != 30 {
		t.Fatalf("expected 30 suspended, got %+v", result)
	}
}
