package audit

import (
	"github.com/beneflow/beneflow/internal/audit/repository"
	"github.com/beneflow/beneflow/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
