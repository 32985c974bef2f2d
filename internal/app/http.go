package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	httpapi "github.com/yungbote/atelier-backend/internal/http"
	httpH "github.com/yungbote/atelier-backend/internal/http/handlers"
	httpMW "github.com/yungbote/atelier-backend/internal/http/middleware"
	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, db *gorm.DB, c Clients, s Services) (*gin.Engine, error) {
	log.Info("Wiring router...")
	auth, err := httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey, cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("init auth middleware: %w", err)
	}

	ready := map[string]httpH.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if c.Redis != nil {
		ready["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}

	return httpapi.NewRouter(httpapi.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		ServiceName:       cfg.ServiceName,
		CORSOrigins:       cfg.CORSOrigins,
		AuthMiddleware:    auth,
		PaymentHandler:    httpH.NewPaymentHandler(log, s.Payments, s.Catalog),
		CreditHandler:     httpH.NewCreditHandler(s.Credits),
		GenerationHandler: httpH.NewGenerationHandler(s.Generations),
		HealthHandler:     httpH.NewHealthHandler(ready),
	}), nil
}
