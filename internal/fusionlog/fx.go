package fusionlog

import (
	"github.com/smallbiznis/cardforge/internal/fusionlog/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("fusionlog.repository",
	fx.Provide(repository.Provide),
)
