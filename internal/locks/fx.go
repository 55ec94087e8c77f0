package locks

import "go.uber.org/fx"

var Module = fx.Module("locks",
	fx.Provide(NewKeyedMutex),
	fx.Provide(NewLocker),
)
