package notification

import (
	"github.com/beneflow/beneflow/internal/notification/repository"
	"github.com/beneflow/beneflow/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
