package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/atelier-backend/internal/data/repos"
	types "github.com/yungbote/atelier-backend/internal/domain"
	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/credits"
	"github.com/yungbote/atelier-backend/internal/domain/payments"
	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/ctxutil"
	"github.com/yungbote/atelier-backend/internal/platform/dbctx"
	"github.com/yungbote/atelier-backend/internal/platform/eventbus"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/platform/paygw"
)

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type PaymentService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*types.Order, error)
	Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error)
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error)
	GetOrder(ctx context.Context, orderID string) (*types.Order, error)
}

type CreateOrderInput struct {
	PackageID string
	OrderID   string
}

type ConfirmInput struct {
	PaymentKey string
	OrderID    string
	Amount     int64
}

type ConfirmResult struct {
	Success      bool
	OrderID      string
	Credits      int64
	BalanceAfter int64
	// Replayed is set when the order had already been confirmed before this call.
	Replayed bool
}

type WebhookResult struct {
	EventType string
	OrderID   string
	Status    payments.OrderStatus
	Outcome   payments.WebhookOutcome
}

type PaymentServiceDeps struct {
	Log           *logger.Logger
	Orders        repos.OrderRepo
	Webhooks      repos.WebhookEventRepo
	Transactions  repos.CreditTransactionRepo
	Ledger        domainagg.LedgerAggregate
	Gateway       paygw.Client
	Catalog       *CreditCatalog
	Events        eventbus.Bus
	Metrics       *observability.Metrics
	WebhookSecret string
}

type paymentService struct {
	log           *logger.Logger
	orders        repos.OrderRepo
	webhooks      repos.WebhookEventRepo
	transactions  repos.CreditTransactionRepo
	ledger        domainagg.LedgerAggregate
	gateway       paygw.Client
	catalog       *CreditCatalog
	events        eventbus.Bus
	metrics       *observability.Metrics
	webhookSecret string
}

func NewPaymentService(deps PaymentServiceDeps) PaymentService {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = eventbus.NewNoop()
	}
	return &paymentService{
		log:           log.With("service", "PaymentService"),
		orders:        deps.Orders,
		webhooks:      deps.Webhooks,
		transactions:  deps.Transactions,
		ledger:        deps.Ledger,
		gateway:       deps.Gateway,
		catalog:       deps.Catalog,
		events:        events,
		metrics:       deps.Metrics,
		webhookSecret: deps.WebhookSecret,
	}
}

func (s *paymentService) CreateOrder(ctx context.Context, in CreateOrderInput) (*types.Order, error) {
	const op = "payments.create_order"
	userID := ctxutil.UserID(ctx)
	if userID == "" {
		return nil, domainagg.NewError(domainagg.CodeNotAuthenticated, op, "sign in required", nil)
	}
	pkg, ok := s.catalog.Lookup(in.PackageID)
	if !ok {
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "unknown credit package", nil)
	}
	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		orderID = "ord_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if !orderIDPattern.MatchString(orderID) {
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "order id must be 1-64 characters of [A-Za-z0-9_-]", nil)
	}

	order, err := s.ledger.CreateOrder(ctx, domainagg.CreateOrderInput{
		OrderID:   orderID,
		UserID:    userID,
		PackageID: pkg.ID,
		Amount:    pkg.Amount,
		Credits:   pkg.Credits,
	})
	if domainagg.IsCode(err, domainagg.CodeConflict) {
		// A client retrying its own create gets the existing order back.
		existing, getErr := s.orders.GetByID(dbctx.Context{Ctx: ctx}, orderID)
		if getErr == nil && existing != nil && existing.UserID == userID && existing.PackageID == pkg.ID {
			return existing, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("order created", "order_id", order.ID, "user_id", userID, "package_id", pkg.ID, "amount", pkg.Amount)
	return order, nil
}

func (s *paymentService) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	const op = "payments.get_order"
	userID := ctxutil.UserID(ctx)
	if userID == "" {
		return nil, domainagg.NewError(domainagg.CodeNotAuthenticated, op, "sign in required", nil)
	}
	order, err := s.orders.GetByID(dbctx.Context{Ctx: ctx}, strings.TrimSpace(orderID))
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if order == nil || order.UserID != userID {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, "order not found", nil)
	}
	return order, nil
}

func (s *paymentService) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	const op = "payments.confirm"
	userID := ctxutil.UserID(ctx)
	if userID == "" {
		return nil, domainagg.NewError(domainagg.CodeNotAuthenticated, op, "sign in required", nil)
	}
	in.PaymentKey = strings.TrimSpace(in.PaymentKey)
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.PaymentKey == "" || in.OrderID == "" || in.Amount <= 0 {
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "paymentKey, orderId and a positive amount are required", nil)
	}

	order, err := s.orders.GetByID(dbctx.Context{Ctx: ctx}, in.OrderID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if order == nil || order.UserID != userID {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, "order not found", nil)
	}
	// Checked before the status so a settled order never answers a tampered amount.
	if order.Amount != in.Amount {
		s.log.Warn("confirm amount mismatch", "order_id", order.ID, "user_id", userID, "expected", order.Amount, "got", in.Amount)
		return nil, domainagg.NewError(domainagg.CodeAmountMismatch, op, "amount does not match the order", nil)
	}
	if order.Status != payments.OrderStatusPending {
		return s.settledResult(ctx, op, order)
	}

	payment, err := s.gateway.Confirm(ctx, paygw.ConfirmRequest{PaymentKey: in.PaymentKey, OrderID: order.ID, Amount: order.Amount})
	if err != nil && paygw.ProviderCode(err) == paygw.CodeAlreadyProcessedPayment {
		payment, err = s.recoverCaptured(ctx, in.PaymentKey, order, err)
	}
	if err != nil {
		s.ledger.MarkFailed(context.WithoutCancel(ctx), order.ID, failureDiagnostic(err))
		return nil, err
	}
	if payment.PaymentKey == "" {
		payment.PaymentKey = in.PaymentKey
	}

	res, err := s.ledger.CreditAndConfirm(ctx, domainagg.CreditAndConfirmInput{
		OrderID:        order.ID,
		UserID:         userID,
		Credits:        order.Credits,
		TransactionKey: payment.PaymentKey,
		Snapshot:       payment.Snapshot("confirm"),
	})
	if err != nil {
		return s.afterLostConfirm(ctx, order, payment, err)
	}

	s.metrics.IncOrderTransition(string(payments.OrderStatusConfirmed))
	s.metrics.AddCreditsGranted(res.Credits)
	s.log.Info("order confirmed", "order_id", order.ID, "user_id", userID, "credits", res.Credits, "balance_after", res.BalanceAfter)
	publishBestEffort(ctx, s.log, s.events, eventbus.Event{
		Type:    eventbus.EventOrderStatusChanged,
		OrderID: order.ID,
		UserID:  userID,
		Status:  string(payments.OrderStatusConfirmed),
		Credits: res.Credits,
		At:      res.ConfirmedAt,
	})
	return &ConfirmResult{Success: true, OrderID: order.ID, Credits: res.Credits, BalanceAfter: res.BalanceAfter}, nil
}

// recoverCaptured handles a gateway that already captured this payment on an
// earlier attempt whose ledger write never committed.
func (s *paymentService) recoverCaptured(ctx context.Context, paymentKey string, order *types.Order, cause error) (*paygw.Payment, error) {
	p, err := s.gateway.Lookup(ctx, paymentKey)
	if err != nil {
		return nil, err
	}
	if p.Status == paygw.StatusDone && p.OrderID == order.ID && p.TotalAmount == order.Amount {
		s.log.Info("recovered payment captured by an earlier attempt", "order_id", order.ID)
		return p, nil
	}
	return nil, cause
}

// afterLostConfirm resolves a ledger refusal that happened after the gateway
// captured the payment.
func (s *paymentService) afterLostConfirm(ctx context.Context, order *types.Order, payment *paygw.Payment, err error) (*ConfirmResult, error) {
	if !domainagg.IsCode(err, domainagg.CodeAlreadyProcessed) {
		s.log.Error("ledger write failed after gateway capture", "order_id", order.ID, "error", err)
		return nil, err
	}
	if payments.OrderStatus(domainagg.DetailOf(err)) == payments.OrderStatusConfirmed {
		return s.replayedResult(ctx, order), nil
	}
	// A webhook moved the order out of pending while we were at the gateway.
	// The captured payment must not be kept without credits.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, cerr := s.gateway.Cancel(cctx, payment.PaymentKey, "order no longer pending"); cerr != nil {
		s.log.Error("compensating cancel failed", "order_id", order.ID, "order_status", domainagg.DetailOf(err), "error", cerr)
	} else {
		s.log.Warn("captured payment canceled after losing to webhook", "order_id", order.ID, "order_status", domainagg.DetailOf(err))
	}
	return nil, err
}

func (s *paymentService) settledResult(ctx context.Context, op string, order *types.Order) (*ConfirmResult, error) {
	if order.Status == payments.OrderStatusConfirmed {
		return s.replayedResult(ctx, order), nil
	}
	return nil, domainagg.WithDetail(domainagg.CodeAlreadyProcessed, op, "order is "+string(order.Status), string(order.Status))
}

// replayedResult answers a repeated confirm with what the first one returned.
// BalanceAfter comes from the order's own credit transaction, not the current
// balance, so later grants do not change the replay.
func (s *paymentService) replayedResult(ctx context.Context, order *types.Order) *ConfirmResult {
	res := &ConfirmResult{Success: true, OrderID: order.ID, Credits: order.Credits, Replayed: true}
	if s.transactions == nil {
		return res
	}
	row, err := s.transactions.GetByReference(dbctx.Context{Ctx: ctx}, order.ID, credits.ReasonPaymentConfirmed)
	if err != nil {
		s.log.Warn("replayed confirm without balance", "order_id", order.ID, "error", err)
		return res
	}
	if row != nil {
		res.BalanceAfter = row.BalanceAfter
	}
	return res
}

func failureDiagnostic(err error) domainagg.FailureDiagnostic {
	code := domainagg.DetailOf(err)
	if code == "" {
		code = string(domainagg.CodeOf(err))
	}
	if code == "" {
		code = string(domainagg.CodeInternal)
	}
	return domainagg.FailureDiagnostic{Code: code, Message: err.Error()}
}

var webhookTargets = map[string]payments.OrderStatus{
	paygw.StatusCanceled: payments.OrderStatusCanceled,
	paygw.StatusExpired:  payments.OrderStatusExpired,
	paygw.StatusAborted:  payments.OrderStatusAborted,
}

func (s *paymentService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	const op = "payments.webhook"
	if !paygw.VerifySignature(s.webhookSecret, rawBody, signature) {
		s.metrics.IncWebhookEvent("unknown", "signature_invalid")
		s.log.Warn("webhook signature rejected", "body_bytes", len(rawBody))
		return nil, domainagg.NewError(domainagg.CodeSignatureInvalid, op, "invalid signature", nil)
	}
	ev, err := paygw.ParseWebhook(rawBody)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeInvalidInput, op, "malformed webhook", err)
	}

	out := &WebhookResult{EventType: ev.EventType, OrderID: ev.Data.OrderID, Outcome: payments.WebhookOutcomeIgnored}
	to, handled := webhookTargets[ev.Data.Status]
	if ev.EventType == paygw.EventPaymentStatusChanged && handled && ev.Data.OrderID != "" {
		snap := ev.Data.Snapshot(ev.EventType)
		res, err := s.ledger.TransitionFromPending(ctx, domainagg.TransitionOrderInput{
			OrderID:  ev.Data.OrderID,
			ToStatus: to,
			Snapshot: &snap,
		})
		switch {
		case domainagg.IsCode(err, domainagg.CodeNotFound):
			// Acknowledged so the gateway stops retrying an order we never issued.
			s.log.Warn("webhook for unknown order", "order_id", ev.Data.OrderID, "gateway_status", ev.Data.Status)
		case err != nil:
			return nil, err
		case res.Applied:
			out.Status = res.Status
			out.Outcome = payments.WebhookOutcomeApplied
			s.metrics.IncOrderTransition(string(res.Status))
			publishBestEffort(ctx, s.log, s.events, eventbus.Event{
				Type:    eventbus.EventOrderStatusChanged,
				OrderID: res.OrderID,
				Status:  string(res.Status),
			})
		default:
			out.Status = res.Status
			out.Outcome = payments.WebhookOutcomeNoop
		}
	}

	s.metrics.IncWebhookEvent(ev.EventType, string(out.Outcome))
	s.log.Info("webhook processed", "event_type", ev.EventType, "order_id", out.OrderID, "gateway_status", ev.Data.Status, "outcome", out.Outcome)
	s.recordWebhook(ctx, ev, rawBody, out)
	return out, nil
}

// recordWebhook writes the audit row; failures are logged only.
func (s *paymentService) recordWebhook(ctx context.Context, ev *paygw.WebhookEvent, rawBody []byte, out *WebhookResult) {
	if s.webhooks == nil {
		return
	}
	payload := datatypes.JSON(rawBody)
	if !json.Valid(rawBody) {
		payload = nil
	}
	row := &types.WebhookEvent{
		EventType:     ev.EventType,
		OrderID:       ev.Data.OrderID,
		GatewayStatus: ev.Data.Status,
		Outcome:       out.Outcome,
		Payload:       payload,
	}
	if err := s.webhooks.Create(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, row); err != nil {
		s.log.Warn("webhook audit write failed", "order_id", ev.Data.OrderID, "error", fmt.Errorf("record webhook: %w", err))
	}
}
