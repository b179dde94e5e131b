package fusion

import (
	"github.com/smallbiznis/cardforge/internal/fusion/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fusion.service",
	fx.Provide(service.New),
)
