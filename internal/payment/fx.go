package payment

import (
	"context"

	"github.com/weldvault/weldvault/internal/payment/repository"
	"github.com/weldvault/weldvault/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewPoller),
	fx.Invoke(registerPollerShutdown),
)

// registerPollerShutdown ties every running payment watch to the app
// lifecycle; leaked timers past shutdown are a bug.
func registerPollerShutdown(lc fx.Lifecycle, poller *service.Poller) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			poller.CancelAll()
			return nil
		},
	})
}
