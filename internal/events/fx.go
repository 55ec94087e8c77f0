package events

import (
	"context"

	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
	"github.com/smallbiznis/perishables/internal/scheduler"
	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(NewBus),
	fx.Provide(
		func(b *Bus) pricingdomain.EventPublisher { return b },
		func(b *Bus) inventorydomain.EventPublisher { return b },
		func(b *Bus) scheduler.Publisher { return b },
	),
	fx.Provide(NewForwarder),
	fx.Invoke(registerForwarder),
)

func registerForwarder(lc fx.Lifecycle, f *Forwarder) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return f.Start(context.Background())
		},
		OnStop: func(context.Context) error {
			f.Stop()
			return nil
		},
	})
}
