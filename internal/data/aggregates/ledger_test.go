package aggregates_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/data/aggregates"
	aggtest "github.com/yungbote/atelier-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/atelier-backend/internal/data/repos"
	"github.com/yungbote/atelier-backend/internal/data/repos/testutil"
	types "github.com/yungbote/atelier-backend/internal/domain"
	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/payments"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
)

type ledgerFixture struct {
	db     *gorm.DB
	ledger domainagg.LedgerAggregate
	hooks  *aggtest.HooksRecorder
	orders repos.OrderRepo
	bal    repos.CreditBalanceRepo
	txs    repos.CreditTransactionRepo
}

func newLedgerFixture(t *testing.T, runner aggregates.TxRunner) ledgerFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := ledgerFixture{
		db:     db,
		hooks:  &aggtest.HooksRecorder{},
		orders: repos.NewOrderRepo(db, log),
		bal:    repos.NewCreditBalanceRepo(db, log),
		txs:    repos.NewCreditTransactionRepo(db, log),
	}
	f.ledger = aggregates.NewLedgerAggregate(aggregates.LedgerAggregateDeps{
		Base:         aggregates.BaseDeps{DB: db, Log: log, Runner: runner, Hooks: f.hooks},
		Orders:       f.orders,
		Balances:     f.bal,
		Transactions: f.txs,
	})
	return f
}

func (f ledgerFixture) order(t *testing.T, id string) *types.Order {
	t.Helper()
	o, err := f.orders.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return o
}

// requireConsistent checks that the user's transaction history sums to the stored balance.
func (f ledgerFixture) requireConsistent(t *testing.T, userID string, wantBalance int64) {
	t.Helper()
	dbc := dbctx.Context{Ctx: context.Background()}
	b, err := f.bal.Get(dbc, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.PaidCredits != wantBalance {
		t.Fatalf("balance: want %d got %d", wantBalance, b.PaidCredits)
	}
	drift, err := f.bal.Drift(dbc, []string{userID})
	if err != nil {
		t.Fatalf("drift: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("balance drifted from transactions: %+v", drift)
	}
}

func confirmInput(orderID, userID string, credits int64) domainagg.CreditAndConfirmInput {
	return domainagg.CreditAndConfirmInput{
		OrderID:        orderID,
		UserID:         userID,
		Credits:        credits,
		TransactionKey: "pk_" + orderID,
		Snapshot:       payments.GatewaySnapshot{PaymentKey: "pk_" + orderID, OrderID: orderID, Status: "DONE", TotalAmount: 9900},
	}
}

func TestCreditAndConfirmCreditsExactlyOnce(t *testing.T) {
	f := newLedgerFixture(t, nil)
	testutil.SeedOrder(t, f.db, "ord_1", "u1", 9900, 100)

	res, err := f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_1", "u1", 100))
	if err != nil {
		t.Fatalf("CreditAndConfirm: %v", err)
	}
	if res.Credits != 100 || res.BalanceAfter != 100 || res.OrderID != "ord_1" {
		t.Fatalf("unexpected result %+v", res)
	}

	o := f.order(t, "ord_1")
	if o.Status != payments.OrderStatusConfirmed || o.ConfirmedAt == nil {
		t.Fatalf("order not confirmed: %+v", o)
	}
	if o.GatewayTransactionKey == nil || *o.GatewayTransactionKey != "pk_ord_1" {
		t.Fatalf("transaction key not stored: %v", o.GatewayTransactionKey)
	}
	snap, err := o.Snapshot()
	if err != nil || snap == nil || snap.Status != "DONE" {
		t.Fatalf("snapshot: %+v err=%v", snap, err)
	}

	_, err = f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_1", "u1", 100))
	if !domainagg.IsCode(err, domainagg.CodeAlreadyProcessed) {
		t.Fatalf("second confirm: want already_processed, got %v", err)
	}
	if domainagg.DetailOf(err) != string(payments.OrderStatusConfirmed) {
		t.Fatalf("detail: %q", domainagg.DetailOf(err))
	}
	f.requireConsistent(t, "u1", 100)
	if f.hooks.Count("ledger.credit_and_confirm", "success") != 1 || f.hooks.Count("ledger.credit_and_confirm", "already_processed") != 1 {
		t.Fatalf("hook statuses: %v", f.hooks.Statuses("ledger.credit_and_confirm"))
	}

	rows, err := f.txs.ListByUser(dbctx.Context{Ctx: context.Background()}, "u1", 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("transactions: rows=%d err=%v", len(rows), err)
	}
	if rows[0].ReferenceID != "ord_1" || rows[0].Reason != "payment_confirmed" || rows[0].BalanceAfter != 100 {
		t.Fatalf("unexpected transaction %+v", rows[0])
	}
}

func TestCreditAndConfirmRejectsWrongOwnerAndCredits(t *testing.T) {
	f := newLedgerFixture(t, nil)
	testutil.SeedOrder(t, f.db, "ord_2", "u1", 9900, 100)

	if _, err := f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_2", "u2", 100)); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("wrong owner: want not_found, got %v", err)
	}
	if _, err := f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_missing", "u1", 100)); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing order: want not_found, got %v", err)
	}
	if _, err := f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_2", "u1", 500)); !domainagg.IsCode(err, domainagg.CodeInvalidInput) {
		t.Fatalf("credit mismatch: want invalid_input, got %v", err)
	}
	if o := f.order(t, "ord_2"); o.Status != payments.OrderStatusPending {
		t.Fatalf("order must stay pending, got %s", o.Status)
	}
	f.requireConsistent(t, "u1", 0)
}

func TestCreditAndConfirmIsAllOrNothing(t *testing.T) {
	db := testutil.DB(t)
	failure := errors.New("commit lost")
	runner := &aggtest.InjectedTxRunner{Inner: aggregates.NewGormTxRunner(db), FailAfterBody: failure}
	log := testutil.Logger(t)
	ledger := aggregates.NewLedgerAggregate(aggregates.LedgerAggregateDeps{
		Base:         aggregates.BaseDeps{DB: db, Log: log, Runner: runner},
		Orders:       repos.NewOrderRepo(db, log),
		Balances:     repos.NewCreditBalanceRepo(db, log),
		Transactions: repos.NewCreditTransactionRepo(db, log),
	})
	testutil.SeedOrder(t, db, "ord_3", "u1", 9900, 100)

	_, err := ledger.CreditAndConfirm(context.Background(), confirmInput("ord_3", "u1", 100))
	if !errors.Is(err, failure) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if runner.RollbackCalls != 1 {
		t.Fatalf("expected rollback, got %d", runner.RollbackCalls)
	}

	var order types.Order
	if err := db.First(&order, "id = ?", "ord_3").Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != payments.OrderStatusPending {
		t.Fatalf("status must be rolled back, got %s", order.Status)
	}
	var balances, txs int64
	db.Model(&types.CreditBalance{}).Count(&balances)
	db.Model(&types.CreditTransaction{}).Count(&txs)
	if balances != 0 || txs != 0 {
		t.Fatalf("partial write survived: balances=%d transactions=%d", balances, txs)
	}
}

func TestCreditAndConfirmConcurrentCallsCreditOnce(t *testing.T) {
	f := newLedgerFixture(t, nil)
	testutil.SeedOrder(t, f.db, "ord_4", "u1", 9900, 100)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_4", "u1", 100))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case domainagg.IsCode(err, domainagg.CodeAlreadyProcessed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one confirm must win, got %d", succeeded)
	}
	f.requireConsistent(t, "u1", 100)
}

func TestCreditAndConfirmSumsAcrossOrders(t *testing.T) {
	f := newLedgerFixture(t, nil)
	testutil.SeedOrder(t, f.db, "ord_a", "u1", 9900, 100)
	testutil.SeedOrder(t, f.db, "ord_b", "u1", 4900, 40)

	if _, err := f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_a", "u1", 100)); err != nil {
		t.Fatalf("confirm a: %v", err)
	}
	res, err := f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_b", "u1", 40))
	if err != nil {
		t.Fatalf("confirm b: %v", err)
	}
	if res.BalanceAfter != 140 {
		t.Fatalf("balance after: %d", res.BalanceAfter)
	}
	f.requireConsistent(t, "u1", 140)
}

func TestMarkFailedOnlyTouchesPendingOrders(t *testing.T) {
	f := newLedgerFixture(t, nil)
	testutil.SeedOrder(t, f.db, "ord_f", "u1", 9900, 100)
	testutil.SeedOrder(t, f.db, "ord_c", "u1", 9900, 100)

	f.ledger.MarkFailed(context.Background(), "ord_f", domainagg.FailureDiagnostic{Code: "REJECT_CARD_COMPANY", Message: "card declined"})
	o := f.order(t, "ord_f")
	if o.Status != payments.OrderStatusFailed || o.FailureCode != "REJECT_CARD_COMPANY" {
		t.Fatalf("unexpected order %+v", o)
	}

	if _, err := f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_c", "u1", 100)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.ledger.MarkFailed(context.Background(), "ord_c", domainagg.FailureDiagnostic{Code: "LATE"})
	if o := f.order(t, "ord_c"); o.Status != payments.OrderStatusConfirmed {
		t.Fatalf("confirmed order must not be failed, got %s", o.Status)
	}

	// Unknown ids and empty ids are swallowed.
	f.ledger.MarkFailed(context.Background(), "ord_missing", domainagg.FailureDiagnostic{Code: "X"})
	f.ledger.MarkFailed(context.Background(), "", domainagg.FailureDiagnostic{Code: "X"})
}

func TestMarkFailedSwallowsStoreErrors(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	runner := &aggtest.InjectedTxRunner{FailBegin: errors.New("connection refused")}
	ledger := aggregates.NewLedgerAggregate(aggregates.LedgerAggregateDeps{
		Base:         aggregates.BaseDeps{DB: db, Log: log, Runner: runner},
		Orders:       repos.NewOrderRepo(db, log),
		Balances:     repos.NewCreditBalanceRepo(db, log),
		Transactions: repos.NewCreditTransactionRepo(db, log),
	})
	ledger.MarkFailed(context.Background(), "ord_x", domainagg.FailureDiagnostic{Code: "X"})
	if runner.BeginCalls != 1 {
		t.Fatalf("expected one attempt, got %d", runner.BeginCalls)
	}
}

func TestTransitionFromPendingAppliesOnce(t *testing.T) {
	f := newLedgerFixture(t, nil)
	testutil.SeedOrder(t, f.db, "ord_w", "u1", 9900, 100)

	in := domainagg.TransitionOrderInput{
		OrderID:  "ord_w",
		ToStatus: payments.OrderStatusCanceled,
		Snapshot: &payments.GatewaySnapshot{OrderID: "ord_w", Status: "CANCELED", EventType: "PAYMENT_STATUS_CHANGED"},
	}
	res, err := f.ledger.TransitionFromPending(context.Background(), in)
	if err != nil || !res.Applied || res.Status != payments.OrderStatusCanceled {
		t.Fatalf("first delivery: res=%+v err=%v", res, err)
	}

	in.ToStatus = payments.OrderStatusExpired
	res, err = f.ledger.TransitionFromPending(context.Background(), in)
	if err != nil || res.Applied || res.Status != payments.OrderStatusCanceled {
		t.Fatalf("replay must be a no-op reporting the current status: res=%+v err=%v", res, err)
	}

	if _, err := f.ledger.CreditAndConfirm(context.Background(), confirmInput("ord_w", "u1", 100)); domainagg.DetailOf(err) != string(payments.OrderStatusCanceled) {
		t.Fatalf("confirm after cancel: want already_processed(canceled), got %v", err)
	}
	f.requireConsistent(t, "u1", 0)
}

func TestTransitionFromPendingValidation(t *testing.T) {
	f := newLedgerFixture(t, nil)
	if _, err := f.ledger.TransitionFromPending(context.Background(), domainagg.TransitionOrderInput{OrderID: "ord_1", ToStatus: payments.OrderStatusConfirmed}); !domainagg.IsCode(err, domainagg.CodeInvalidInput) {
		t.Fatalf("webhooks never confirm: got %v", err)
	}
	if _, err := f.ledger.TransitionFromPending(context.Background(), domainagg.TransitionOrderInput{OrderID: "ord_1", ToStatus: "CANCELED"}); !domainagg.IsCode(err, domainagg.CodeInvalidInput) {
		t.Fatalf("non-canonical status: got %v", err)
	}
	if _, err := f.ledger.TransitionFromPending(context.Background(), domainagg.TransitionOrderInput{OrderID: "ord_none", ToStatus: payments.OrderStatusAborted}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown order: got %v", err)
	}
}

func TestCreateOrderRejectsDuplicates(t *testing.T) {
	f := newLedgerFixture(t, nil)
	in := domainagg.CreateOrderInput{OrderID: "ord_new", UserID: "u1", PackageID: "pkg_100", Amount: 9900, Credits: 100}
	o, err := f.ledger.CreateOrder(context.Background(), in)
	if err != nil || o.Status != payments.OrderStatusPending {
		t.Fatalf("CreateOrder: o=%+v err=%v", o, err)
	}
	if _, err := f.ledger.CreateOrder(context.Background(), in); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate: want conflict, got %v", err)
	}
	if len(f.hooks.Conflicts) != 1 || f.hooks.Count("ledger.create_order", "conflict") != 1 {
		t.Fatalf("conflict hook: %+v", f.hooks.Conflicts)
	}
	if _, err := f.ledger.CreateOrder(context.Background(), domainagg.CreateOrderInput{OrderID: "x", UserID: "u1"}); !domainagg.IsCode(err, domainagg.CodeInvalidInput) {
		t.Fatalf("zero amount: got %v", err)
	}
}
