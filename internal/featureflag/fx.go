package featureflag

import (
	"context"
	"strings"

	"github.com/smallbiznis/cardforge/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflag",
	fx.Provide(
		NewStore,
		func(s *MemoryStore) Store { return s },
		NewResolver,
	),
)

// NewStore seeds the defaults and, when FEATURE_FLAGS_FILE is set, loads and
// watches that file for the lifetime of the app.
func NewStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*MemoryStore, error) {
	store := NewMemoryStore(Defaults()...)
	path := strings.TrimSpace(cfg.FeatureFlagsFile)
	if path == "" {
		return store, nil
	}

	loader := NewFileLoader(path, store, log)
	if err := loader.Load(); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return loader.Watch()
		},
		OnStop: func(context.Context) error {
			return loader.Close()
		},
	})
	return store, nil
}
