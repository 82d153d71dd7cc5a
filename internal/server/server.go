package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/orderdesk/internal/config"
	dashboarddomain "github.com/smallbiznis/orderdesk/internal/dashboard/domain"
	escalationdomain "github.com/smallbiznis/orderdesk/internal/escalation/domain"
	obsmiddleware "github.com/smallbiznis/orderdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/orderdesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/orderdesk/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/ratelimit"
	"github.com/smallbiznis/orderdesk/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(func(p *realtime.Publisher) InitialFeed { return p }),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

// InitialFeed sends the first dashboard snapshot to a freshly connected client.
type InitialFeed interface {
	SendInitial(ctx context.Context, c *realtime.Client)
}

func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           cfg.Verbose(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CORS(cfg.CORSOrigin))
	r.Use(BodyLimit(cfg.MaxRequestBytes))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// RunHTTP binds the engine to cfg.HTTPAddr for the lifetime of the app.
func RunHTTP(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":3001"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	engine        *gin.Engine
	cfg           config.Config
	orderSvc      orderdomain.Service
	dashboardSvc  dashboarddomain.Service
	escalationSvc escalationdomain.Service
	hub           *realtime.Hub
	feed          InitialFeed
	upgrader      *websocket.Upgrader
	sweepGuard    *ratelimit.SweepGuard
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	OrderSvc      orderdomain.Service
	DashboardSvc  dashboarddomain.Service
	EscalationSvc escalationdomain.Service
	Hub           *realtime.Hub
	Feed          InitialFeed           `optional:"true"`
	SweepGuard    *ratelimit.SweepGuard `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		orderSvc:      p.OrderSvc,
		dashboardSvc:  p.DashboardSvc,
		escalationSvc: p.EscalationSvc,
		hub:           p.Hub,
		feed:          p.Feed,
		upgrader:      realtime.Upgrader(p.Cfg.CORSOrigin),
		sweepGuard:    p.SweepGuard,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerOrderRoutes()
	svc.registerDashboardRoutes()
	svc.registerNotificationRoutes()
	svc.registerRealtimeRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerOrderRoutes() {
	orders := s.engine.Group("/orders")

	orders.GET("", s.ListOrders)
	orders.GET("/stats/counts", s.GetOrderCounts)
	orders.GET("/:id", s.GetOrderByID)
	orders.POST("/sla/update", s.ManualSweepRateLimit(), s.UpdateSLAStatuses)
}

func (s *Server) registerDashboardRoutes() {
	dashboard := s.engine.Group("/dashboard")

	dashboard.GET("/summary", s.GetDashboardSummary)
}

func (s *Server) registerNotificationRoutes() {
	escalations := s.engine.Group("/notifications/escalations")

	escalations.POST("", s.CreateEscalation)
	escalations.GET("", s.ListEscalations)
	escalations.POST("/:id/resolve", s.ResolveEscalation)
}

func (s *Server) registerRealtimeRoutes() {
	s.engine.GET("/realtime/stats", s.GetRealtimeStats)
	s.engine.GET("/ws", s.ServeWebSocket)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
