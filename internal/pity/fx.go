package pity

import (
	"github.com/smallbiznis/cardforge/internal/pity/repository"
	"github.com/smallbiznis/cardforge/internal/pity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
