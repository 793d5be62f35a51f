package gateway

import (
	"github.com/beneflow/beneflow/internal/gateway/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(repository.Provide),
	fx.Provide(NewClient),
)
