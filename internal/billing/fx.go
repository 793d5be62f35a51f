package billing

import (
	"github.com/beneflow/beneflow/internal/billing/repository"
	"github.com/beneflow/beneflow/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
