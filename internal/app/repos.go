package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/data/repos"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type Repos struct {
	Orders       repos.OrderRepo
	Webhooks     repos.WebhookEventRepo
	Balances     repos.CreditBalanceRepo
	Transactions repos.CreditTransactionRepo
	Jobs         repos.GenerationJobRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Orders:       repos.NewOrderRepo(db, log),
		Webhooks:     repos.NewWebhookEventRepo(db, log),
		Balances:     repos.NewCreditBalanceRepo(db, log),
		Transactions: repos.NewCreditTransactionRepo(db, log),
		Jobs:         repos.NewGenerationJobRepo(db, log),
	}
}
