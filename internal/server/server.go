package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/cardforge/internal/audit/domain"
	"github.com/smallbiznis/cardforge/internal/auth"
	"github.com/smallbiznis/cardforge/internal/authorization"
	"github.com/smallbiznis/cardforge/internal/clock"
	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/smallbiznis/cardforge/internal/featureflag"
	fusiondomain "github.com/smallbiznis/cardforge/internal/fusion/domain"
	inventorydomain "github.com/smallbiznis/cardforge/internal/inventory/domain"
	"github.com/smallbiznis/cardforge/internal/observability"
	obsmiddleware "github.com/smallbiznis/cardforge/internal/observability/logger"
	obstracing "github.com/smallbiznis/cardforge/internal/observability/tracing"
	pitydomain "github.com/smallbiznis/cardforge/internal/pity/domain"
	"github.com/smallbiznis/cardforge/internal/ratelimit"
	userdomain "github.com/smallbiznis/cardforge/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	clock     clock.Clock
	verifier  *auth.Verifier
	authzSvc  authorization.Service
	auditSvc  auditdomain.Service
	userSvc   userdomain.Service
	fusionSvc fusiondomain.Service
	inventory inventorydomain.Service
	pitySvc   pitydomain.Service
	flags     featureflag.Store
	limiter   *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Verifier  *auth.Verifier
	AuthzSvc  authorization.Service
	AuditSvc  auditdomain.Service
	UserSvc   userdomain.Service
	FusionSvc fusiondomain.Service
	Inventory inventorydomain.Service
	PitySvc   pitydomain.Service
	Flags     featureflag.Store
	Limiter   *ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http.server"),
		clock:     p.Clock,
		verifier:  p.Verifier,
		authzSvc:  p.AuthzSvc,
		auditSvc:  p.AuditSvc,
		userSvc:   p.UserSvc,
		fusionSvc: p.FusionSvc,
		inventory: p.Inventory,
		pitySvc:   p.PitySvc,
		flags:     p.Flags,
		limiter:   p.Limiter,
	}

	svc.registerPlayerRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPlayerRoutes() {
	v1 := s.engine.Group("/v1", s.AuthRequired())

	// -------- Fusions --------
	v1.POST("/fusions", s.FusionRateLimit(), s.CreateFusion)
	v1.GET("/fusions", s.ListFusions)
	v1.GET("/fusions/:id", s.GetFusion)
	v1.GET("/fusions/:id/verify", s.VerifyFusion)

	// -------- Holdings --------
	v1.GET("/inventory", s.GetInventory)
	v1.GET("/pity", s.GetPity)
	v1.GET("/rate-limits", s.GetRateLimits)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired())

	admin.GET("/flags", s.authorize(authorization.ObjectFlag, authorization.ActionFlagRead), s.ListFlags)
	admin.PUT("/flags/:name", s.authorize(authorization.ObjectFlag, authorization.ActionFlagWrite), s.UpdateFlag)
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
	admin.DELETE("/rate-limits/:user_id/:action", s.authorize(authorization.ObjectRateLimit, authorization.ActionRateLimitReset), s.ResetRateLimit)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
