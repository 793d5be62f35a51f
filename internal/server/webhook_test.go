package server_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	billingrepo "github.com/beneflow/beneflow/internal/billing/repository"
	billingservice "github.com/beneflow/beneflow/internal/billing/service"
	"github.com/beneflow/beneflow/internal/clock"
	"github.com/beneflow/beneflow/internal/config"
	customerrepo "github.com/beneflow/beneflow/internal/customer/repository"
	"github.com/beneflow/beneflow/internal/gateway"
	gwrepo "github.com/beneflow/beneflow/internal/gateway/repository"
	"github.com/beneflow/beneflow/internal/server"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testTenant int64 = 9001
	testSecret       = "whsec_server_test"
)

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
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			receivable_id BIGINT NOT NULL,
			customer_id BIGINT,
			value NUMERIC NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			provider_payment_id TEXT,
			paid_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_payments_provider_payment
			ON payments(provider_payment_id) WHERE provider_payment_id IS NOT NULL`,
		`CREATE TABLE commissions (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL UNIQUE,
			salesperson_id BIGINT NOT NULL,
			rate NUMERIC NOT NULL,
			amount NUMERIC NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE expenses (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			commission_id BIGINT,
			description TEXT NOT NULL DEFAULT '',
			amount NUMERIC NOT NULL,
			due_date DATE NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE gateway_credentials (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL UNIQUE,
			api_key TEXT NOT NULL DEFAULT '',
			webhook_secret TEXT NOT NULL DEFAULT '',
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

func newTestServer(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(31)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	cfg := config.Config{
		GatewayTimeoutSeconds: 2,
		GatewayMaxAttempts:    1,
		GatewayRetryBaseMS:    1,
	}
	billingSvc := billingservice.New(billingservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Repo:         billingrepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
		CredsRepo:    gwrepo.Provide(),
		Gateway:      gateway.NewClient(cfg, zap.NewNop()),
	})

	engine := server.NewEngine(zap.NewNop())
	server.NewServer(server.ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		CredsRepo:  gwrepo.Provide(),
		BillingSvc: billingSvc,
	})
	return engine
}

func seedCredentials(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO gateway_credentials (id, tenant_id, api_key, webhook_secret) VALUES (?, ?, ?, ?)`,
		1, testTenant, "key_1", testSecret,
	).Error
	if err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
}

func seedReceivable(t *testing.T, db *gorm.DB, id int64, status, providerPaymentID string) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO receivables (id, tenant_id, value, due_date, status, provider_payment_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, testTenant, 150.0, "2025-05-15", status, providerPaymentID,
	).Error
	if err != nil {
		t.Fatalf("seed receivable: %v", err)
	}
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(engine *gin.Engine, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func eventBody(event, paymentID string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": event,
		"payment": map[string]any{
			"id":     paymentID,
			"status": "RECEIVED",
			"value":  150.0,
		},
	})
	return body
}

func TestWebhookRejectsUnresolvableTenant(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestServer(t, db)

	rec := postWebhook(engine, eventBody("PAYMENT_RECEIVED", "pay_1"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestServer(t, db)
	seedCredentials(t, db)

	body := eventBody("PAYMENT_RECEIVED", "pay_1")
	tenant := fmt.Sprintf("%d", testTenant)

	rec := postWebhook(engine, body, map[string]string{"x-tenant": tenant})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: expected 401, got %d", rec.Code)
	}

	rec = postWebhook(engine, body, map[string]string{
		"x-tenant":    tenant,
		"x-signature": "deadbeef",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid signature: expected 401, got %d", rec.Code)
	}
}

func TestWebhookRejectsUnknownTenantCredentials(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestServer(t, db)

	body := eventBody("PAYMENT_RECEIVED", "pay_1")
	rec := postWebhook(engine, body, map[string]string{
		"x-tenant":    fmt.Sprintf("%d", testTenant),
		"x-signature": sign(body),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without stored credentials, got %d", rec.Code)
	}
}

func TestWebhookAppliesVerifiedEvent(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestServer(t, db)
	seedCredentials(t, db)
	seedReceivable(t, db, 501, "PENDING", "pay_501")

	body := eventBody("PAYMENT_RECEIVED", "pay_501")
	rec := postWebhook(engine, body, map[string]string{
		"x-tenant":    fmt.Sprintf("%d", testTenant),
		"x-signature": sign(body),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["ok"] {
		t.Fatalf("expected ok response, got %s", rec.Body.String())
	}

	var status string
	if err := db.Raw(`SELECT status FROM receivables WHERE id = ?`, 501).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "RECEIVED" {
		t.Fatalf("expected RECEIVED, got %s", status)
	}
}

func TestWebhookResolvesTenantFromQueryAndBody(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestServer(t, db)
	seedCredentials(t, db)
	seedReceivable(t, db, 502, "PENDING", "pay_502")

	body := eventBody("PAYMENT_OVERDUE", "pay_502")
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/webhook?tenant=%d", testTenant), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-signature", sign(body))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("query tenant: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Body resolution must leave the payload readable for signature checks.
	withTenant, _ := json.Marshal(map[string]any{
		"tenant": testTenant,
		"event":  "PAYMENT_RECEIVED",
		"payment": map[string]any{
			"id":     "pay_502",
			"status": "RECEIVED",
			"value":  150.0,
		},
	})
	rec = postWebhook(engine, withTenant, map[string]string{"x-signature": sign(withTenant)})
	if rec.Code != http.StatusOK {
		t.Fatalf("body tenant: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var status string
	if err := db.Raw(`SELECT status FROM receivables WHERE id = ?`, 502).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "RECEIVED" {
		t.Fatalf("expected RECEIVED, got %s", status)
	}
}

func TestWebhookUnmatchedEventStillOK(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestServer(t, db)
	seedCredentials(t, db)

	body := eventBody("PAYMENT_RECEIVED", "pay_unknown")
	rec := postWebhook(engine, body, map[string]string{
		"x-tenant":    fmt.Sprintf("%d", testTenant),
		"x-signature": sign(body),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unmatched event, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookAcknowledgesUnmappedEvent(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestServer(t, db)
	seedCredentials(t, db)
	seedReceivable(t, db, 503, "PENDING", "pay_503")

	// An event type outside the payment lifecycle is acknowledged, not
	// rejected, so the provider does not retry it forever.
	body := eventBody("PAYMENT_EXPLODED", "pay_503")
	rec := postWebhook(engine, body, map[string]string{
		"x-tenant":    fmt.Sprintf("%d", testTenant),
		"x-signature": sign(body),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unmapped event, got %d: %s", rec.Code, rec.Body.String())
	}

	// Same for a body without a payment object at all.
	subOnly, _ := json.Marshal(map[string]any{
		"event": "SUBSCRIPTION_UPDATED",
		"subscription": map[string]any{
			"id": "sub_503",
		},
	})
	rec = postWebhook(engine, subOnly, map[string]string{
		"x-tenant":    fmt.Sprintf("%d", testTenant),
		"x-signature": sign(subOnly),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for subscription-only body, got %d: %s", rec.Code, rec.Body.String())
	}

	var status string
	if err := db.Raw(`SELECT status FROM receivables WHERE id = ?`, 503).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "PENDING" {
		t.Fatalf("receivable must be untouched, got %s", status)
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestServer(t, db)
	seedCredentials(t, db)

	body := []byte(`{"event": "PAYMENT_RECEIVED", "payment":`)
	rec := postWebhook(engine, body, map[string]string{
		"x-tenant":    fmt.Sprintf("%d", testTenant),
		"x-signature": sign(body),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d: %s", rec.Code, rec.Body.String())
	}
}
