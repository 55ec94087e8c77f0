package inventory

import (
	"github.com/smallbiznis/perishables/internal/inventory/cache"
	"github.com/smallbiznis/perishables/internal/inventory/repository"
	"github.com/smallbiznis/perishables/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.New),
	fx.Provide(service.New),
)
