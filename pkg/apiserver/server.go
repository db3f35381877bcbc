package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/panelstack/quotad/pkg/apiserver/handlers"
	"github.com/panelstack/quotad/pkg/apiserver/middleware"
	"github.com/panelstack/quotad/pkg/config"
	"github.com/panelstack/quotad/pkg/eventbus"
	"github.com/panelstack/quotad/pkg/quota"
	"github.com/panelstack/quotad/pkg/settings"
	"github.com/panelstack/quotad/pkg/store/postgres"
	redisclient "github.com/panelstack/quotad/pkg/store/redis"
)

const auditRetentionDays = 90

type Server struct {
	router   *gin.Engine
	db       *postgres.Store
	redis    *redisclient.Client
	engine   *quota.Engine
	settings *settings.Service
	audit    *postgres.AuditRepository
	cfg      *config.Config
	logger   *zap.Logger
}

func NewServer(db *postgres.Store, redis *redisclient.Client, cfg *config.Config, logger *zap.Logger) *Server {
	var bus *eventbus.Bus
	if redis != nil {
		bus = eventbus.NewBus(redis.Client())
	}

	settingsRepo := postgres.NewSettingsRepository(db.DB(), logger)
	settingsService := settings.NewService(settingsRepo, redis, cfg.Settings.CacheTTL, logger)

	quotaRepo := postgres.NewQuotaRepository(db.DB(), settingsService, logger)
	serverRepo := postgres.NewServerRepository(db.DB(), logger)
	userRepo := postgres.NewUserRepository(db.DB(), logger)
	auditRepo := postgres.NewAuditRepository(db.DB(), logger)

	engine := quota.NewEngine(quotaRepo, serverRepo, settingsService, userRepo, logger)

	s := &Server{
		db:       db,
		redis:    redis,
		engine:   engine,
		settings: settingsService,
		audit:    auditRepo,
		cfg:      cfg,
		logger:   logger,
	}
	s.setupRouter(quotaRepo, serverRepo, userRepo, bus)

	go s.startAuditRetentionWorker()

	return s
}

func (s *Server) startAuditRetentionWorker() {
	ticker := time.NewTicker(1 * time.Hour)

	for range ticker.C {
		s.logger.Info("pruning old quota audit entries", zap.Int("retention_days", auditRetentionDays))
		if err := s.audit.DeleteOldEntries(context.Background(), auditRetentionDays); err != nil {
			s.logger.Error("failed to prune audit entries", zap.Error(err))
		}
	}
}

func (s *Server) setupRouter(quotaRepo *postgres.QuotaRepository, serverRepo *postgres.ServerRepository, userRepo *postgres.UserRepository, bus *eventbus.Bus) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(s.cfg.Auth))

		quotaHandler := handlers.NewQuotaHandler(s.engine, quotaRepo, userRepo, s.audit, bus, s.logger)
		api.GET("/users/:id/quota", quotaHandler.Get)
		api.PUT("/users/:id/quota", quotaHandler.Update)
		api.DELETE("/users/:id/quota", quotaHandler.Delete)
		api.POST("/users/:id/quota/adjust", quotaHandler.Adjust)
		api.GET("/users/:id/usage", quotaHandler.Usage)
		api.GET("/users/:id/quota/audit", quotaHandler.Audit)

		serverHandler := handlers.NewServerHandler(s.engine, serverRepo, s.audit, bus, s.logger)
		api.GET("/servers/:id/resources", serverHandler.GetResources)
		api.PATCH("/servers/:id/resources", serverHandler.Update)

		settingsHandler := handlers.NewSettingsHandler(s.settings, bus, s.logger)
		api.GET("/settings/:name", settingsHandler.Get)
		api.PUT("/settings/:name", settingsHandler.Update)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Engine() *quota.Engine {
	return s.engine
}
