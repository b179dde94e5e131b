package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cardforge/internal/audit"
	"github.com/smallbiznis/cardforge/internal/auth"
	"github.com/smallbiznis/cardforge/internal/authorization"
	"github.com/smallbiznis/cardforge/internal/catalog"
	"github.com/smallbiznis/cardforge/internal/clock"
	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/smallbiznis/cardforge/internal/featureflag"
	"github.com/smallbiznis/cardforge/internal/fusion"
	"github.com/smallbiznis/cardforge/internal/fusionlog"
	"github.com/smallbiznis/cardforge/internal/inventory"
	"github.com/smallbiznis/cardforge/internal/migration"
	"github.com/smallbiznis/cardforge/internal/observability"
	"github.com/smallbiznis/cardforge/internal/pity"
	"github.com/smallbiznis/cardforge/internal/probability"
	"github.com/smallbiznis/cardforge/internal/ratelimit"
	"github.com/smallbiznis/cardforge/internal/server"
	"github.com/smallbiznis/cardforge/internal/signature"
	"github.com/smallbiznis/cardforge/internal/user"
	"github.com/smallbiznis/cardforge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Collaborators
		catalog.Module,
		user.Module,
		auth.Module,
		authorization.Module,
		audit.Module,

		// Fusion
		inventory.Module,
		fusionlog.Module,
		pity.Module,
		featureflag.Module,
		probability.Module,
		signature.Module,
		ratelimit.Module,
		fusion.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
