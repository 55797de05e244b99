package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for services so that lifecycle rules
// (expiry, renewal windows) stay testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the wall clock.
func NewSystemClock() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
