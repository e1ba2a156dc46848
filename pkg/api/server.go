package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/config"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/metrics"
	"github.com/blip0/blip0/pkg/service"
)

// Services bundles everything the HTTP layer dispatches into.
type Services struct {
	Tenants     *service.TenantService
	Monitors    *service.MonitorService
	Networks    *service.NetworkService
	Triggers    *service.TriggerService
	BlockStates *service.BlockStateService
	Missed      *service.MissedBlockService
	Matches     *service.MatchService
	Executions  *service.ExecutionService
}

// Server is the control-plane HTTP API.
type Server struct {
	cfg    config.ServerConfig
	svc    Services
	http   *http.Server
	logger zerolog.Logger
}

// New builds the server with its routes registered.
func New(cfg config.ServerConfig, svc Services) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		logger: log.WithComponent("api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(), observe())
	s.routes(router)

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1", requireTenant())
	{
		v1.POST("/monitors", s.createMonitor)
		v1.GET("/monitors", s.listMonitors)
		v1.GET("/monitors/active", s.activeMonitors)
		v1.POST("/monitors/refresh-cache", s.refreshMonitorCache)
		v1.GET("/monitors/:id", s.getMonitor)
		v1.PUT("/monitors/:id", s.updateMonitor)
		v1.DELETE("/monitors/:id", s.deleteMonitor)
		v1.POST("/monitors/:id/pause", s.pauseMonitor)
		v1.POST("/monitors/:id/resume", s.resumeMonitor)
		v1.POST("/monitors/:id/validate", s.validateMonitor)
		v1.POST("/monitors/:id/clone", s.cloneMonitor)

		v1.POST("/triggers", s.createTrigger)
		v1.GET("/triggers", s.listTriggers)
		v1.GET("/triggers/:id", s.getTrigger)
		v1.PUT("/triggers/:id", s.updateTrigger)
		v1.DELETE("/triggers/:id", s.deleteTrigger)
		v1.POST("/triggers/:id/activate", s.activateTrigger)
		v1.POST("/triggers/:id/deactivate", s.deactivateTrigger)

		v1.GET("/networks", s.listNetworks)
		v1.GET("/networks/:slug", s.getNetworkBySlug)

		v1.GET("/block-states", s.listBlockStates)
		v1.GET("/block-states/:network_id/stats", s.blockProcessingStats)
		v1.PUT("/block-states/:network_id/status", s.updateBlockStatus)
		v1.PUT("/block-states/:network_id/processed", s.recordBlockProcessed)
		v1.PUT("/block-states/:network_id/metrics", s.updateBlockMetrics)

		v1.POST("/missed-blocks", s.recordMissedBlock)
		v1.GET("/missed-blocks", s.listMissedBlocks)
		v1.POST("/missed-blocks/retry", s.retryMissedBlocks)
		v1.PUT("/missed-blocks/:id/processed", s.markMissedBlockProcessed)

		v1.POST("/matches", s.recordMatch)
		v1.GET("/matches", s.recentMatches)
		v1.PUT("/matches/:id/trigger-counts", s.updateMatchTriggerCounts)

		v1.POST("/executions", s.recordExecution)
		v1.GET("/executions/stats", s.executionStats)
		v1.PUT("/executions/:id/status", s.updateExecutionStatus)
		v1.POST("/executions/:id/retry", s.retryExecution)
		v1.POST("/executions/retry", s.bulkRetryExecutions)
	}

	admin := r.Group("/admin", requireAdmin())
	{
		admin.POST("/networks", s.createNetwork)
		admin.GET("/networks", s.listNetworks)
		admin.GET("/networks/:id", s.getNetwork)
		admin.PATCH("/networks/:id", s.updateNetwork)
		admin.DELETE("/networks/:id", s.deleteNetwork)
		admin.POST("/networks/:id/validate", s.validateNetwork)

		admin.POST("/tenants", s.createTenant)
		admin.GET("/tenants/:id", s.getTenant)
		admin.GET("/tenants/:id/limits", s.getTenantLimits)
		admin.PUT("/tenants/:id/plan", s.setTenantPlan)
		admin.POST("/tenants/:id/suspend", s.suspendTenant)
		admin.POST("/tenants/:id/reactivate", s.reactivateTenant)
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("api server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("api server shutting down")
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
