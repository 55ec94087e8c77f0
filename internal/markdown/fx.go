package markdown

import (
	"github.com/smallbiznis/perishables/internal/markdown/engine"
	"github.com/smallbiznis/perishables/internal/markdown/service"
	"go.uber.org/fx"
)

var Module = fx.Module("markdown.service",
	fx.Provide(func() *engine.Engine { return engine.New() }),
	fx.Provide(service.New),
)
