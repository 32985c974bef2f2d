package payments

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCanceled  OrderStatus = "canceled"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusAborted   OrderStatus = "aborted"
)

// IsTerminal reports whether no further transition may be applied.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPending
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusFailed,
		OrderStatusCanceled, OrderStatusExpired, OrderStatusAborted:
		return true
	default:
		return false
	}
}

// Order is a single payment intent. ID doubles as the idempotency key for the
// gateway round trip and for the credit grant.
type Order struct {
	ID                      string         `gorm:"column:id;primaryKey" json:"id"`
	UserID                  string         `gorm:"column:user_id;not null;index" json:"user_id"`
	PackageID               string         `gorm:"column:package_id" json:"package_id,omitempty"`
	Amount                  int64          `gorm:"column:amount;not null" json:"amount"`
	Credits                 int64          `gorm:"column:credits;not null" json:"credits"`
	Status                  OrderStatus    `gorm:"column:status;not null;index" json:"status"`
	GatewayTransactionKey   *string        `gorm:"column:gateway_transaction_key" json:"gateway_transaction_key,omitempty"`
	GatewayResponseSnapshot datatypes.JSON `gorm:"column:gateway_response_snapshot" json:"-"`
	FailureCode             string         `gorm:"column:failure_code" json:"failure_code,omitempty"`
	FailureMessage          string         `gorm:"column:failure_message" json:"failure_message,omitempty"`
	CreatedAt               time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	ConfirmedAt             *time.Time     `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	UpdatedAt               time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Order) TableName() string { return "payment_orders" }

// GatewaySnapshot is the audited subset of what the gateway reported for an order.
type GatewaySnapshot struct {
	PaymentKey  string `json:"paymentKey,omitempty"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount,omitempty"`
	Method      string `json:"method,omitempty"`
	ApprovedAt  string `json:"approvedAt,omitempty"`
	EventType   string `json:"eventType,omitempty"`
}

func (s GatewaySnapshot) Encode() (datatypes.JSON, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode gateway snapshot: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// Snapshot decodes the stored gateway response; nil when none was recorded.
func (o *Order) Snapshot() (*GatewaySnapshot, error) {
	if o == nil || len(o.GatewayResponseSnapshot) == 0 {
		return nil, nil
	}
	var s GatewaySnapshot
	if err := json.Unmarshal(o.GatewayResponseSnapshot, &s); err != nil {
		return nil, fmt.Errorf("decode gateway snapshot for order %s: %w", o.ID, err)
	}
	return &s, nil
}
