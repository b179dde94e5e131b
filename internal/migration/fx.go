package migration

import (
	"context"

	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/smallbiznis/cardforge/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if err := Run(conn); err != nil {
			return err
		}
		if !cfg.SeedDemoData {
			return nil
		}
		if err := seed.EnsureDemoCatalog(context.Background(), conn); err != nil {
			return err
		}
		log.Info("demo catalog ensured")
		return nil
	}),
)
