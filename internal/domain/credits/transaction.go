package credits

import (
	"time"

	"github.com/google/uuid"
)

type CreditType string

const (
	CreditTypePaid     CreditType = "paid"
	CreditTypeGranted  CreditType = "granted"
	CreditTypeConsumed CreditType = "consumed"
)

// ReasonPaymentConfirmed is the reason written for credits bought through an order.
const ReasonPaymentConfirmed = "payment_confirmed"

// Transaction is an immutable ledger row. (ReferenceID, Reason) is unique so a
// replayed credit for the same order or job cannot be written twice.
type Transaction struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string     `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount       int64      `gorm:"column:amount;not null" json:"amount"`
	CreditType   CreditType `gorm:"column:credit_type;not null" json:"credit_type"`
	Reason       string     `gorm:"column:reason;not null;uniqueIndex:ux_credit_tx_reference_reason,priority:2" json:"reason"`
	ReferenceID  string     `gorm:"column:reference_id;not null;uniqueIndex:ux_credit_tx_reference_reason,priority:1" json:"reference_id"`
	BalanceAfter int64      `gorm:"column:balance_after;not null" json:"balance_after"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (Transaction) TableName() string { return "credit_transactions" }
