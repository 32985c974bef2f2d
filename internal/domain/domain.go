package domain

import (
	"github.com/yungbote/atelier-backend/internal/domain/credits"
	"github.com/yungbote/atelier-backend/internal/domain/generation"
	"github.com/yungbote/atelier-backend/internal/domain/payments"
)

type Order = payments.Order
type OrderStatus = payments.OrderStatus
type GatewaySnapshot = payments.GatewaySnapshot
type WebhookEvent = payments.WebhookEvent

type CreditTransaction = credits.Transaction
type CreditBalance = credits.Balance

type GenerationJob = generation.Job

// Models lists every table owned by this service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&payments.Order{},
		&payments.WebhookEvent{},
		&credits.Balance{},
		&credits.Transaction{},
		&generation.Job{},
	}
}
