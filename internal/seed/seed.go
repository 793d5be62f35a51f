// Package seed bootstraps a demo tenant for local development: credentials,
// rules, a handful of customers and open receivables, so the dashboard and
// sweep paths have data on first run.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/beneflow/beneflow/internal/config"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	demoTenantName = "Demo Benefits Ltda"
	demoTenantSlug = "demo"
)

// Run seeds the demo tenant when SEED_DEMO_DATA is set. Idempotent: an
// existing demo tenant short-circuits.
func Run(cfg config.Config, db *gorm.DB, genID *snowflake.Node, log *zap.Logger) error {
	if !cfg.SeedDemoData {
		return nil
	}
	return EnsureDemoTenant(context.Background(), db, genID, log.Named("seed"))
}

func EnsureDemoTenant(ctx context.Context, db *gorm.DB, genID *snowflake.Node, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Raw(`SELECT id FROM tenants WHERE slug = ? LIMIT 1`, demoTenantSlug).Scan(&existing).Error
		if err != nil {
			return err
		}
		if existing != 0 {
			return nil
		}

		tenantID := genID.Generate()
		if err := tx.Exec(
			`INSERT INTO tenants (id, name, slug) VALUES (?, ?, ?)`,
			tenantID, demoTenantName, demoTenantSlug,
		).Error; err != nil {
			return err
		}

		if err := tx.Exec(
			`INSERT INTO gateway_credentials (id, tenant_id, api_key, webhook_secret)
			 VALUES (?, ?, '', 'demo_webhook_secret')`,
			genID.Generate(), tenantID,
		).Error; err != nil {
			return err
		}

		if err := tx.Exec(
			`INSERT INTO business_rules (id, tenant_id, suspension_threshold_days, grace_period_days)
			 VALUES (?, ?, 60, 5)`,
			genID.Generate(), tenantID,
		).Error; err != nil {
			return err
		}

		if err := seedCustomers(tx, genID, tenantID); err != nil {
			return err
		}

		log.Info("demo tenant seeded", zap.Int64("tenant_id", tenantID.Int64()))
		return nil
	})
}

func seedCustomers(tx *gorm.DB, genID *snowflake.Node, tenantID snowflake.ID) error {
	now := time.Now().UTC()
	customers := []struct {
		name    string
		email   string
		phone   string
		dueIn   []int // days relative to now, negative = overdue
		values  []float64
		blocked bool
	}{
		{"Ana Martins", "ana@example.com", "5511980000001", []int{-75, -45, -15}, []float64{189.90, 189.90, 189.90}, false},
		{"Bruno Costa", "bruno@example.com", "5511980000002", []int{-10}, []float64{259.00}, false},
		{"Clara Dias", "", "5511980000003", []int{5}, []float64{149.50}, false},
		{"Diego Nunes", "diego@example.com", "", []int{-30}, []float64{99.90}, true},
	}

	for _, c := range customers {
		customerID := genID.Generate()
		if err := tx.Exec(
			`INSERT INTO customers (id, tenant_id, name, email, phone, notification_blocked)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			customerID, tenantID, c.name, c.email, c.phone, c.blocked,
		).Error; err != nil {
			return err
		}
		for i, days := range c.dueIn {
			if err := tx.Exec(
				`INSERT INTO receivables (id, tenant_id, customer_id, value, due_date, status, description)
				 VALUES (?, ?, ?, ?, ?, ?, 'Mensalidade plano demo')`,
				genID.Generate(), tenantID, customerID, c.values[i],
				now.AddDate(0, 0, days).Format("2006-01-02"),
				statusForDue(days),
			).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func statusForDue(days int) string {
	if days < 0 {
		return "OVERDUE"
	}
	return "PENDING"
}
