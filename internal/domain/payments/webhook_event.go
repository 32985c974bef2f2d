package payments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type WebhookOutcome string

const (
	WebhookOutcomeApplied WebhookOutcome = "applied"
	WebhookOutcomeNoop    WebhookOutcome = "noop"
	WebhookOutcomeIgnored WebhookOutcome = "ignored"
)

// WebhookEvent is the audit row for one verified gateway delivery.
type WebhookEvent struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventType     string         `gorm:"column:event_type;not null;index" json:"event_type"`
	OrderID       string         `gorm:"column:order_id;index" json:"order_id"`
	GatewayStatus string         `gorm:"column:gateway_status" json:"gateway_status"`
	Outcome       WebhookOutcome `gorm:"column:outcome;not null" json:"outcome"`
	Payload       datatypes.JSON `gorm:"column:payload" json:"-"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (WebhookEvent) TableName() string { return "payment_webhook_events" }
