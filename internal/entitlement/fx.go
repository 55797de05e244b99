package entitlement

import (
	"github.com/weldvault/weldvault/internal/entitlement/repository"
	"github.com/weldvault/weldvault/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.ProvideCounters),
	fx.Provide(service.NewService),
)
