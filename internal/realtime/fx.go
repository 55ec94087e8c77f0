package realtime

import (
	"context"

	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("realtime",
	fx.Provide(NewHub),
	fx.Provide(NewHandler),
	fx.Provide(newAlertDispatcher),
	fx.Invoke(registerHubLifecycle),
)

func newAlertDispatcher(hub *Hub, source AlertSource, cfg config.Config, clk clock.Clock, log *zap.Logger) *AlertDispatcher {
	return NewAlertDispatcher(hub, source, DelayTrigger{Delay: cfg.AlertPushDelay}, clk, log)
}

func registerHubLifecycle(lc fx.Lifecycle, hub *Hub) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})
}
