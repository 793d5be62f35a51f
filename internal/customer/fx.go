package customer

import (
	"github.com/beneflow/beneflow/internal/customer/repository"
	"github.com/beneflow/beneflow/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
