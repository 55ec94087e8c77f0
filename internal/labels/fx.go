package labels

import "go.uber.org/fx"

var Module = fx.Module("labels.service",
	fx.Provide(New),
)
