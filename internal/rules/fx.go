package rules

import (
	"github.com/beneflow/beneflow/internal/cache"
	"github.com/beneflow/beneflow/internal/rules/repository"
	"github.com/beneflow/beneflow/internal/rules/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rules.service",
	fx.Provide(cache.NewRulesCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
