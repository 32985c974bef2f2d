package credits

import "time"

// Balance is only ever changed in the same DB transaction that inserts a Transaction.
type Balance struct {
	UserID      string    `gorm:"column:user_id;primaryKey" json:"user_id"`
	PaidCredits int64     `gorm:"column:paid_credits;not null;default:0" json:"paid_credits"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Balance) TableName() string { return "user_balances" }

// Drift is a user whose transaction history no longer sums to the stored balance.
type Drift struct {
	UserID         string `json:"user_id"`
	PaidCredits    int64  `json:"paid_credits"`
	TransactionSum int64  `json:"transaction_sum"`
}
