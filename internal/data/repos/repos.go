package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/data/repos/credits"
	"github.com/yungbote/atelier-backend/internal/data/repos/generation"
	"github.com/yungbote/atelier-backend/internal/data/repos/payments"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

type OrderRepo = payments.OrderRepo
type WebhookEventRepo = payments.WebhookEventRepo

type CreditBalanceRepo = credits.BalanceRepo
type CreditTransactionRepo = credits.TransactionRepo

type GenerationJobRepo = generation.JobRepo

func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
	return payments.NewOrderRepo(db, baseLog)
}
func NewWebhookEventRepo(db *gorm.DB, baseLog *logger.Logger) WebhookEventRepo {
	return payments.NewWebhookEventRepo(db, baseLog)
}

func NewCreditBalanceRepo(db *gorm.DB, baseLog *logger.Logger) CreditBalanceRepo {
	return credits.NewBalanceRepo(db, baseLog)
}
func NewCreditTransactionRepo(db *gorm.DB, baseLog *logger.Logger) CreditTransactionRepo {
	return credits.NewTransactionRepo(db, baseLog)
}

func NewGenerationJobRepo(db *gorm.DB, baseLog *logger.Logger) GenerationJobRepo {
	return generation.NewJobRepo(db, baseLog)
}
