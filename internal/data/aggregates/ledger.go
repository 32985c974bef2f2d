package aggregates

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/atelier-backend/internal/data/repos"
	types "github.com/yungbote/atelier-backend/internal/domain"
	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/credits"
	"github.com/yungbote/atelier-backend/internal/domain/payments"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
)

const ordersTable = "payment_orders"

type LedgerAggregateDeps struct {
	Base         BaseDeps
	Orders       repos.OrderRepo
	Balances     repos.CreditBalanceRepo
	Transactions repos.CreditTransactionRepo
}

type ledgerAggregate struct {
	deps BaseDeps
	ord  repos.OrderRepo
	bal  repos.CreditBalanceRepo
	txs  repos.CreditTransactionRepo
}

func NewLedgerAggregate(deps LedgerAggregateDeps) domainagg.LedgerAggregate {
	base := deps.Base.withDefaults()
	base.Log = base.Log.With("aggregate", "LedgerAggregate")
	return &ledgerAggregate{
		deps: base,
		ord:  deps.Orders,
		bal:  deps.Balances,
		txs:  deps.Transactions,
	}
}

func (a *ledgerAggregate) Contract() domainagg.Contract {
	return domainagg.LedgerAggregateContract
}

func (a *ledgerAggregate) CreateOrder(ctx context.Context, in domainagg.CreateOrderInput) (*payments.Order, error) {
	const op = "ledger.create_order"
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.UserID = strings.TrimSpace(in.UserID)
	switch {
	case in.OrderID == "" || in.UserID == "":
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "order id and user id are required", nil)
	case in.Amount <= 0 || in.Credits <= 0:
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "amount and credits must be positive", nil)
	}
	at := in.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	order := &types.Order{
		ID:        in.OrderID,
		UserID:    in.UserID,
		PackageID: strings.TrimSpace(in.PackageID),
		Amount:    in.Amount,
		Credits:   in.Credits,
		Status:    payments.OrderStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
	err := executeWrite(ctx, a.deps, op, func(dbc dbctx.Context) error {
		if err := a.ord.Create(dbc, order); err != nil {
			if IsUniqueViolation(err) {
				return ConflictError("order id already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (a *ledgerAggregate) CreditAndConfirm(ctx context.Context, in domainagg.CreditAndConfirmInput) (domainagg.CreditAndConfirmResult, error) {
	const op = "ledger.credit_and_confirm"
	var out domainagg.CreditAndConfirmResult

	in.OrderID = strings.TrimSpace(in.OrderID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.TransactionKey = strings.TrimSpace(in.TransactionKey)
	switch {
	case in.OrderID == "" || in.UserID == "":
		return out, domainagg.NewError(domainagg.CodeInvalidInput, op, "order id and user id are required", nil)
	case in.Credits <= 0:
		return out, domainagg.NewError(domainagg.CodeInvalidInput, op, "credits must be positive", nil)
	case in.TransactionKey == "":
		return out, domainagg.NewError(domainagg.CodeInvalidInput, op, "gateway transaction key is required", nil)
	}
	if in.TxID == uuid.Nil {
		in.TxID = uuid.New()
	}
	confirmedAt := in.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now().UTC()
	}
	snapshot, err := in.Snapshot.Encode()
	if err != nil {
		return out, domainagg.Wrap(domainagg.CodeInvalidInput, op, err)
	}

	err = executeWrite(ctx, a.deps, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.CASGuard.UpdateByStatus(dbc, StatusCAS{
			Table:   ordersTable,
			ID:      in.OrderID,
			Allowed: []string{string(payments.OrderStatusPending)},
			Extra: map[string]any{
				"user_id": in.UserID,
				"credits": in.Credits,
			},
			Updates: map[string]any{
				"status":                    payments.OrderStatusConfirmed,
				"gateway_transaction_key":   in.TransactionKey,
				"gateway_response_snapshot": snapshot,
				"confirmed_at":              confirmedAt,
				"updated_at":                confirmedAt,
			},
		})
		if err != nil {
			return err
		}
		if !ok {
			return a.explainLostConfirm(dbc, op, in)
		}

		after, err := a.bal.Increment(dbc, in.UserID, in.Credits)
		if err != nil {
			return err
		}
		row := &types.CreditTransaction{
			ID:           in.TxID,
			UserID:       in.UserID,
			Amount:       in.Credits,
			CreditType:   credits.CreditTypePaid,
			Reason:       credits.ReasonPaymentConfirmed,
			ReferenceID:  in.OrderID,
			BalanceAfter: after,
			CreatedAt:    confirmedAt,
		}
		if err := a.txs.Create(dbc, row); err != nil {
			if IsUniqueViolation(err) {
				return domainagg.WithDetail(domainagg.CodeAlreadyProcessed, op,
					"credits for this order were already granted", string(payments.OrderStatusConfirmed))
			}
			return err
		}

		out = domainagg.CreditAndConfirmResult{
			OrderID:       in.OrderID,
			TransactionID: row.ID,
			Credits:       in.Credits,
			BalanceAfter:  after,
			ConfirmedAt:   confirmedAt,
		}
		return nil
	})
	if err != nil {
		return domainagg.CreditAndConfirmResult{}, err
	}
	return out, nil
}

// explainLostConfirm turns a compare-and-set miss into the caller-facing reason.
func (a *ledgerAggregate) explainLostConfirm(dbc dbctx.Context, op string, in domainagg.CreditAndConfirmInput) error {
	order, err := a.ord.GetByID(dbc, in.OrderID)
	if err != nil {
		return err
	}
	switch {
	case order == nil || order.UserID != in.UserID:
		return domainagg.NewError(domainagg.CodeNotFound, op, "order not found", nil)
	case order.Status == payments.OrderStatusPending:
		return domainagg.NewError(domainagg.CodeInvalidInput, op, "credits do not match the order", nil)
	default:
		return domainagg.WithDetail(domainagg.CodeAlreadyProcessed, op, "order is not pending", string(order.Status))
	}
}

func (a *ledgerAggregate) MarkFailed(ctx context.Context, orderID string, diag domainagg.FailureDiagnostic) {
	const op = "ledger.mark_failed"
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return
	}
	now := time.Now().UTC()
	var applied bool
	err := executeWrite(ctx, a.deps, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.CASGuard.UpdateByStatus(dbc, StatusCAS{
			Table:   ordersTable,
			ID:      orderID,
			Allowed: []string{string(payments.OrderStatusPending)},
			Updates: map[string]any{
				"status":          payments.OrderStatusFailed,
				"failure_code":    truncate(diag.Code, 64),
				"failure_message": truncate(diag.Message, 512),
				"updated_at":      now,
			},
		})
		applied = ok
		return err
	})
	switch {
	case err != nil:
		a.deps.Log.Error("failed to record order failure", "order_id", orderID, "failure_code", diag.Code, "error", err)
	case !applied:
		a.deps.Log.Debug("order no longer pending; failure not recorded", "order_id", orderID, "failure_code", diag.Code)
	default:
		a.deps.Log.Info("order marked failed", "order_id", orderID, "failure_code", diag.Code)
	}
}

func (a *ledgerAggregate) TransitionFromPending(ctx context.Context, in domainagg.TransitionOrderInput) (domainagg.TransitionOrderResult, error) {
	const op = "ledger.transition_from_pending"
	out := domainagg.TransitionOrderResult{OrderID: strings.TrimSpace(in.OrderID)}
	if out.OrderID == "" {
		return out, domainagg.NewError(domainagg.CodeInvalidInput, op, "order id is required", nil)
	}
	if err := RequireStatusAllowed(string(in.ToStatus),
		string(payments.OrderStatusCanceled), string(payments.OrderStatusExpired), string(payments.OrderStatusAborted),
	); err != nil {
		return out, domainagg.NewError(domainagg.CodeInvalidInput, op, "unsupported target status "+string(in.ToStatus), err)
	}
	at := in.TransitionAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates := map[string]any{
		"status":     in.ToStatus,
		"updated_at": at,
	}
	if in.Snapshot != nil {
		raw, err := in.Snapshot.Encode()
		if err != nil {
			return out, domainagg.Wrap(domainagg.CodeInvalidInput, op, err)
		}
		updates["gateway_response_snapshot"] = raw
	}

	err := executeWrite(ctx, a.deps, op, func(dbc dbctx.Context) error {
		ok, err := a.deps.CASGuard.UpdateByStatus(dbc, StatusCAS{
			Table:   ordersTable,
			ID:      out.OrderID,
			Allowed: []string{string(payments.OrderStatusPending)},
			Updates: updates,
		})
		if err != nil {
			return err
		}
		if ok {
			out.Status = in.ToStatus
			out.Applied = true
			return nil
		}
		order, err := a.ord.GetByID(dbc, out.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "order not found", nil)
		}
		out.Status = order.Status
		return nil
	})
	if err != nil {
		return domainagg.TransitionOrderResult{OrderID: out.OrderID}, err
	}
	return out, nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
