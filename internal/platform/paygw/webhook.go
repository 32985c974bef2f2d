package paygw

import (
	"encoding/json"
	"fmt"
	"strings"
)

const EventPaymentStatusChanged = "PAYMENT_STATUS_CHANGED"

// WebhookEvent is a gateway delivery. Data holds the payment as it stood when
// the event was emitted.
type WebhookEvent struct {
	EventType string  `json:"eventType"`
	CreatedAt string  `json:"createdAt,omitempty"`
	Data      Payment `json:"data"`
}

// ParseWebhook decodes a body whose signature has already been verified.
func ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	ev.EventType = strings.TrimSpace(ev.EventType)
	ev.Data.OrderID = strings.TrimSpace(ev.Data.OrderID)
	ev.Data.Status = strings.ToUpper(strings.TrimSpace(ev.Data.Status))
	if ev.EventType == "" {
		return nil, fmt.Errorf("decode webhook: missing eventType")
	}
	return &ev, nil
}
