package plansync

import (
	"github.com/beneflow/beneflow/internal/plansync/repository"
	"github.com/beneflow/beneflow/internal/plansync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plansync.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
