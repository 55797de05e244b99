package subscription

import (
	"github.com/weldvault/weldvault/internal/subscription/repository"
	"github.com/weldvault/weldvault/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
