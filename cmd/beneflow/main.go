package main

import (
	"github.com/beneflow/beneflow/internal/clock"
	"github.com/beneflow/beneflow/internal/config"
	"github.com/beneflow/beneflow/internal/logger"
	"github.com/beneflow/beneflow/internal/migration"
	"github.com/beneflow/beneflow/internal/scheduler"
	"github.com/beneflow/beneflow/internal/seed"
	"github.com/beneflow/beneflow/internal/server"
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
		fx.Invoke(seed.Run),

		server.Module,

		scheduler.Module,
		fx.Invoke(scheduler.Run),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
