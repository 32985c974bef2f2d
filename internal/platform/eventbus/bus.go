package eventbus

import (
	"context"
	"time"
)

const (
	EventOrderStatusChanged = "order.status_changed"
	EventJobStatusChanged   = "generation.status_changed"
)

// Event announces an applied state transition. Consumers must treat it as a
// hint and re-read the ledger.
type Event struct {
	Type    string    `json:"type"`
	OrderID string    `json:"order_id,omitempty"`
	JobID   string    `json:"job_id,omitempty"`
	UserID  string    `json:"user_id,omitempty"`
	Status  string    `json:"status"`
	Credits int64     `json:"credits,omitempty"`
	At      time.Time `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, onEvent func(Event)) error
	Close() error
}

type noopBus struct{}

// NewNoop is used when no broker is configured.
func NewNoop() Bus { return noopBus{} }

func (noopBus) Publish(context.Context, Event) error { return nil }

func (noopBus) Subscribe(context.Context, func(Event)) error { return nil }

func (noopBus) Close() error { return nil }
