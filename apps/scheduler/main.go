// Headless sweep worker. Runs the same plan sync and dispatch loop as the
// monolith but without the HTTP surface, for deployments that scale the API
// and the background work independently.
package main

import (
	"github.com/beneflow/beneflow/internal/billing"
	"github.com/beneflow/beneflow/internal/clock"
	"github.com/beneflow/beneflow/internal/config"
	"github.com/beneflow/beneflow/internal/customer"
	"github.com/beneflow/beneflow/internal/gateway"
	"github.com/beneflow/beneflow/internal/logger"
	"github.com/beneflow/beneflow/internal/migration"
	"github.com/beneflow/beneflow/internal/notification"
	"github.com/beneflow/beneflow/internal/plansync"
	"github.com/beneflow/beneflow/internal/providers/notify"
	"github.com/beneflow/beneflow/internal/rules"
	"github.com/beneflow/beneflow/internal/scheduler"
	"github.com/beneflow/beneflow/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		rules.Module,
		gateway.Module,
		customer.Module,
		billing.Module,
		plansync.Module,
		notify.Module,
		notification.Module,

		scheduler.Module,
		fx.Invoke(scheduler.Run),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
