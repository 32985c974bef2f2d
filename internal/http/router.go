package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/atelier-backend/internal/http/handlers"
	httpMW "github.com/yungbote/atelier-backend/internal/http/middleware"
	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware

	PaymentHandler    *httpH.PaymentHandler
	CreditHandler     *httpH.CreditHandler
	GenerationHandler *httpH.GenerationHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	api.Use(httpMW.RequestLogger(cfg.Log))

	// Public: the webhook authenticates by signature, status polls by job id.
	if cfg.PaymentHandler != nil {
		api.POST("/payments/webhook", cfg.PaymentHandler.Webhook)
		api.GET("/payments/packages", cfg.PaymentHandler.ListPackages)
	}
	if cfg.GenerationHandler != nil {
		public := api.Group("/")
		if cfg.AuthMiddleware != nil {
			public.Use(cfg.AuthMiddleware.OptionalAuth())
		}
		public.GET("/generations/:id", cfg.GenerationHandler.GetStatus)
	}

	protected := api.Group("/")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		if cfg.PaymentHandler != nil {
			protected.POST("/payments/orders", cfg.PaymentHandler.CreateOrder)
			protected.GET("/payments/orders/:id", cfg.PaymentHandler.GetOrder)
			protected.POST("/payments/confirm", cfg.PaymentHandler.Confirm)
		}
		if cfg.CreditHandler != nil {
			protected.GET("/credits", cfg.CreditHandler.GetBalance)
		}
		if cfg.GenerationHandler != nil {
			protected.POST("/generations/:id/claim", cfg.GenerationHandler.Claim)
		}
	}

	return r
}
