package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weldvault/weldvault/internal/config"
	"github.com/weldvault/weldvault/internal/entitlement"
	entitlementdomain "github.com/weldvault/weldvault/internal/entitlement/domain"
	"github.com/weldvault/weldvault/internal/events"
	"github.com/weldvault/weldvault/internal/migration"
	"github.com/weldvault/weldvault/internal/observability"
	obsmiddleware "github.com/weldvault/weldvault/internal/observability/logger"
	obsmetrics "github.com/weldvault/weldvault/internal/observability/metrics"
	obstracing "github.com/weldvault/weldvault/internal/observability/tracing"
	"github.com/weldvault/weldvault/internal/payment"
	paymentdomain "github.com/weldvault/weldvault/internal/payment/domain"
	"github.com/weldvault/weldvault/internal/plan"
	"github.com/weldvault/weldvault/internal/scheduler"
	"github.com/weldvault/weldvault/internal/subscription"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	"github.com/weldvault/weldvault/internal/workspace"
	workspacedomain "github.com/weldvault/weldvault/internal/workspace/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	events.Module,
	plan.Module,
	migration.Module,
	workspace.Module,
	entitlement.Module,
	subscription.Module,
	payment.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	plans           *plan.CatalogHolder
	workspaceSvc    workspacedomain.Service
	entitlementSvc  entitlementdomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Plans           *plan.CatalogHolder
	WorkspaceSvc    workspacedomain.Service
	EntitlementSvc  entitlementdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		plans:           p.Plans,
		workspaceSvc:    p.WorkspaceSvc,
		entitlementSvc:  p.EntitlementSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/tiers", s.ListTiers)

	v1.Use(s.PrincipalRequired())

	// -------- Workspaces --------
	v1.GET("/workspaces", s.ListWorkspaces)
	v1.GET("/workspaces/current", s.GetCurrentWorkspace)
	v1.POST("/workspaces/:workspaceId/switch", s.SwitchWorkspace)

	// -------- Entitlement --------
	v1.GET("/entitlement", s.GetEntitlement)
	v1.POST("/entitlement/quota-check", s.CheckQuota)

	// -------- Subscriptions --------
	v1.GET("/subscriptions/current", s.GetCurrentSubscription)
	v1.GET("/subscriptions/:id", s.GetSubscriptionByID)
	v1.POST("/subscriptions/:id/cancel", s.CancelSubscription)

	// -------- Payment Orders --------
	v1.POST("/payment/orders", s.CreatePaymentOrder)
	v1.GET("/payment/orders", s.ListPaymentOrders)
	v1.GET("/payment/orders/:orderId", s.GetPaymentOrder)
	v1.GET("/payment/orders/:orderId/status", s.GetPaymentOrderStatus)
	v1.POST("/payment/orders/:orderId/confirmation", s.BeginPaymentConfirmation)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin")
	admin.Use(s.PrincipalRequired())

	admin.POST("/payment/orders/:orderId/confirm", s.AdminConfirmPaymentOrder)
	admin.POST("/payment/orders/:orderId/reject", s.AdminRejectPaymentOrder)
}
