package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/perishables/internal/auth"
	authdomain "github.com/smallbiznis/perishables/internal/auth/domain"
	"github.com/smallbiznis/perishables/internal/authorization"
	"github.com/smallbiznis/perishables/internal/config"
	"github.com/smallbiznis/perishables/internal/events"
	"github.com/smallbiznis/perishables/internal/inventory"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"github.com/smallbiznis/perishables/internal/labels"
	"github.com/smallbiznis/perishables/internal/markdown"
	markdowndomain "github.com/smallbiznis/perishables/internal/markdown/domain"
	"github.com/smallbiznis/perishables/internal/observability"
	obslogger "github.com/smallbiznis/perishables/internal/observability/logger"
	obstracing "github.com/smallbiznis/perishables/internal/observability/tracing"
	"github.com/smallbiznis/perishables/internal/pricing"
	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
	"github.com/smallbiznis/perishables/internal/ratelimit"
	"github.com/smallbiznis/perishables/internal/realtime"
	"github.com/smallbiznis/perishables/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	auth.Module,
	authorization.Module,
	inventory.Module,
	markdown.Module,
	pricing.Module,
	labels.Module,
	events.Module,
	realtime.Module,
	scheduler.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
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
	engine       *gin.Engine
	log          *zap.Logger
	tokens       authdomain.TokenService
	authz        authorization.Service
	inventorySvc inventorydomain.Service
	markdownSvc  markdowndomain.Service
	pricingSvc   pricingdomain.Service
	labels       *labels.Service
	hub          *realtime.Hub
	realtime     http.Handler
	limiter      *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	Tokens       authdomain.TokenService
	Authz        authorization.Service
	InventorySvc inventorydomain.Service
	MarkdownSvc  markdowndomain.Service
	PricingSvc   pricingdomain.Service
	Labels       *labels.Service
	Hub          *realtime.Hub
	Realtime     *realtime.Handler
	Limiter      *ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http.server"),
		tokens:       p.Tokens,
		authz:        p.Authz,
		inventorySvc: p.InventorySvc,
		markdownSvc:  p.MarkdownSvc,
		pricingSvc:   p.PricingSvc,
		labels:       p.Labels,
		hub:          p.Hub,
		realtime:     p.Realtime,
		limiter:      p.Limiter,
	}

	svc.registerProbeRoutes()
	svc.registerRealtimeRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerProbeRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		resp := gin.H{"status": "ok"}
		if s.hub != nil {
			resp["realtimeStores"] = len(s.hub.Stores())
		}
		c.JSON(http.StatusOK, resp)
	})
}

func (s *Server) registerRealtimeRoutes() {
	if s.realtime == nil {
		return
	}
	s.engine.GET("/ws", gin.WrapH(s.realtime))
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.AuthRequired(), s.RateLimit())

	api.GET("/stores", s.ListStores)

	store := api.Group("/stores/:storeId", StoreScope())
	{
		store.GET("/inventory", s.RequirePermission(authorization.ObjectInventory, authorization.ActionInventoryView), s.ListInventory)
		store.POST("/inventory", s.RequirePermission(authorization.ObjectInventory, authorization.ActionInventoryCreate), s.CreateItem)
		store.GET("/expiring", s.RequirePermission(authorization.ObjectInventory, authorization.ActionInventoryView), s.ListExpiring)

		store.GET("/markdown-recommendations", s.RequirePermission(authorization.ObjectMarkdown, authorization.ActionMarkdownRecommend), s.MarkdownRecommendations)
		store.POST("/selection-discount", s.RequirePermission(authorization.ObjectMarkdown, authorization.ActionMarkdownRecommend), s.SelectionDiscount)
		store.POST("/selection-markdown", s.RequirePermission(authorization.ObjectMarkdown, authorization.ActionMarkdownApply), s.ApplySelectionMarkdown)
		store.GET("/markdown-history", s.RequirePermission(authorization.ObjectMarkdown, authorization.ActionMarkdownHistory), s.MarkdownHistory)
		store.GET("/markdown-labels.pdf", s.RequirePermission(authorization.ObjectLabel, authorization.ActionLabelPrint), s.MarkdownLabels)
	}

	item := api.Group("/inventory/:itemId")
	{
		item.GET("", s.RequirePermission(authorization.ObjectInventory, authorization.ActionInventoryView), s.GetItem)
		item.PUT("/quantity", s.RequirePermission(authorization.ObjectInventory, authorization.ActionInventoryUpdate), s.UpdateQuantity)
		item.POST("/markdown", s.RequirePermission(authorization.ObjectMarkdown, authorization.ActionMarkdownApply), s.ApplyMarkdown)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
