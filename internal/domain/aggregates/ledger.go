package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/domain/payments"
)

var LedgerAggregateContract = Contract{
	Name:             "Payments.LedgerAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Tables:           []string{"payment_orders", "user_balances", "credit_transactions"},
	Notes: "Owns order status, user balance and credit transaction consistency. " +
		"The pending-only compare-and-set on payment_orders is the sole concurrency guard.",
}

// LedgerAggregate owns the order lifecycle invariants.
//
// Write method failures return *aggregates.Error with codes:
// CodeInvalidInput, CodeNotFound, CodeAlreadyProcessed, CodeConflict, CodeRetryable, CodeInternal.
type LedgerAggregate interface {
	Aggregate

	// CreateOrder inserts a pending order. A duplicate id is CodeConflict.
	CreateOrder(ctx context.Context, in CreateOrderInput) (*payments.Order, error)

	// CreditAndConfirm moves a pending order to confirmed, adds the credits to the
	// owner's balance and appends the transaction row, all in one DB transaction.
	CreditAndConfirm(ctx context.Context, in CreditAndConfirmInput) (CreditAndConfirmResult, error)

	// MarkFailed records a failed confirmation on a pending order. It never returns
	// an error: a failure to record a failure is logged, not propagated.
	MarkFailed(ctx context.Context, orderID string, diag FailureDiagnostic)

	// TransitionFromPending applies a non-crediting terminal status (webhook path).
	TransitionFromPending(ctx context.Context, in TransitionOrderInput) (TransitionOrderResult, error)
}

type CreateOrderInput struct {
	OrderID   string
	UserID    string
	PackageID string
	Amount    int64
	Credits   int64
	CreatedAt time.Time
}

type CreditAndConfirmInput struct {
	OrderID        string
	UserID         string
	Credits        int64
	TransactionKey string
	Snapshot       payments.GatewaySnapshot
	TxID           uuid.UUID
	ConfirmedAt    time.Time
}

type CreditAndConfirmResult struct {
	OrderID       string
	TransactionID uuid.UUID
	Credits       int64
	BalanceAfter  int64
	ConfirmedAt   time.Time
}

type FailureDiagnostic struct {
	Code    string
	Message string
}

type TransitionOrderInput struct {
	OrderID      string
	ToStatus     payments.OrderStatus
	Snapshot     *payments.GatewaySnapshot
	TransitionAt time.Time
}

type TransitionOrderResult struct {
	OrderID string
	Status  payments.OrderStatus
	Applied bool
}
