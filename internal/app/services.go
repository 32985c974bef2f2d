package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/data/aggregates"
	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/services"
)

type Services struct {
	Catalog     *services.CreditCatalog
	Payments    services.PaymentService
	Credits     services.CreditService
	Generations services.GenerationService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, metrics *observability.Metrics, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")

	catalog, err := services.LoadCreditCatalog(cfg.CreditPackagesFile)
	if err != nil {
		return Services{}, fmt.Errorf("load credit catalog: %w", err)
	}

	base := aggregates.BaseDeps{
		DB:    db,
		Log:   log,
		Hooks: aggregates.NewObservabilityHooks(metrics, log),
	}
	ledger := aggregates.NewLedgerAggregate(aggregates.LedgerAggregateDeps{
		Base:         base,
		Orders:       r.Orders,
		Balances:     r.Balances,
		Transactions: r.Transactions,
	})
	jobs := aggregates.NewGenerationAggregate(aggregates.GenerationAggregateDeps{
		Base: base,
		Jobs: r.Jobs,
	})

	return Services{
		Catalog: catalog,
		Payments: services.NewPaymentService(services.PaymentServiceDeps{
			Log:           log,
			Orders:        r.Orders,
			Webhooks:      r.Webhooks,
			Transactions:  r.Transactions,
			Ledger:        ledger,
			Gateway:       c.Gateway,
			Catalog:       catalog,
			Events:        c.Events,
			Metrics:       metrics,
			WebhookSecret: cfg.WebhookSecret,
		}),
		Credits: services.NewCreditService(log, r.Balances, r.Transactions),
		Generations: services.NewGenerationService(services.GenerationServiceDeps{
			Log:          log,
			Jobs:         r.Jobs,
			Aggregate:    jobs,
			Provider:     c.ImageGen,
			Store:        c.Artifacts,
			Events:       c.Events,
			Metrics:      metrics,
			SignedURLTTL: cfg.SignedURLTTL,
		}),
	}, nil
}
