package catalog

import (
	"github.com/smallbiznis/cardforge/internal/cache"
	"github.com/smallbiznis/cardforge/internal/catalog/repository"
	"github.com/smallbiznis/cardforge/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewCatalogCache),
	fx.Provide(service.New),
)
