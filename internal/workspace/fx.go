package workspace

import (
	"github.com/weldvault/weldvault/internal/workspace/repository"
	"github.com/weldvault/weldvault/internal/workspace/service"
	"go.uber.org/fx"
)

var Module = fx.Module("workspace.service",
	fx.Provide(repository.ProvideMembershipSource),
	fx.Provide(repository.ProvidePointerRepository),
	fx.Provide(service.NewService),
)
