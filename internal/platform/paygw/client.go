package paygw

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/domain/payments"
	"github.com/yungbote/atelier-backend/internal/observability"
	"github.com/yungbote/atelier-backend/internal/platform/envutil"
	"github.com/yungbote/atelier-backend/internal/platform/httpx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

const (
	StatusDone     = "DONE"
	StatusCanceled = "CANCELED"
	StatusExpired  = "EXPIRED"
	StatusAborted  = "ABORTED"

	// CodeAlreadyProcessedPayment is returned by confirm when an earlier attempt
	// already captured the payment.
	CodeAlreadyProcessedPayment = "ALREADY_PROCESSED_PAYMENT"

	maxResponseBytes = 1 << 20
)

// Client talks to the payment gateway. Every method returns *aggregates.Error
// coded CodeGatewayRejected or CodeGatewayUnreachable on failure.
type Client interface {
	Confirm(ctx context.Context, req ConfirmRequest) (*Payment, error)
	Lookup(ctx context.Context, paymentKey string) (*Payment, error)
	Cancel(ctx context.Context, paymentKey, reason string) (*Payment, error)
}

type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// Payment is the subset of the gateway payment object this service reads.
type Payment struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	Method      string `json:"method,omitempty"`
	ApprovedAt  string `json:"approvedAt,omitempty"`
}

// Snapshot converts the payment to the audited form stored on the order.
func (p *Payment) Snapshot(eventType string) payments.GatewaySnapshot {
	if p == nil {
		return payments.GatewaySnapshot{EventType: eventType}
	}
	return payments.GatewaySnapshot{
		PaymentKey:  p.PaymentKey,
		OrderID:     p.OrderID,
		Status:      p.Status,
		TotalAmount: p.TotalAmount,
		Method:      p.Method,
		ApprovedAt:  p.ApprovedAt,
		EventType:   eventType,
	}
}

// ProviderError is a non-2xx gateway answer. Code and Message come from the
// gateway's error body when it sent one.
type ProviderError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment gateway http %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payment gateway http %d", e.StatusCode)
}

// ProviderCode returns the gateway error code carried by err, or "".
func ProviderCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:   envutil.String("PAYGW_BASE_URL", "https://api.tosspayments.com"),
		SecretKey: envutil.String("PAYGW_SECRET_KEY", ""),
		Timeout:   envutil.Seconds("PAYGW_TIMEOUT_SECONDS", 10*time.Second),
	}
}

type client struct {
	log        *logger.Logger
	baseURL    string
	authHeader string
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("missing PAYGW_SECRET_KEY")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("invalid PAYGW_BASE_URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	// Basic auth with the secret key as user and an empty password.
	token := base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey + ":"))
	return &client{
		log:        log.With("client", "PaymentGateway"),
		baseURL:    base,
		authHeader: "Basic " + token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) Confirm(ctx context.Context, req ConfirmRequest) (*Payment, error) {
	const op = "paygw.confirm"
	req.PaymentKey = strings.TrimSpace(req.PaymentKey)
	req.OrderID = strings.TrimSpace(req.OrderID)
	var p Payment
	// The order id doubles as the gateway idempotency key.
	if err := c.do(ctx, op, http.MethodPost, "/v1/payments/confirm", req.OrderID, req, &p); err != nil {
		return nil, err
	}
	switch {
	case p.OrderID != req.OrderID:
		return nil, rejected(op, fmt.Sprintf("gateway answered for order %q", p.OrderID), "ORDER_MISMATCH")
	case p.TotalAmount != req.Amount:
		return nil, rejected(op, fmt.Sprintf("gateway amount %d differs from %d", p.TotalAmount, req.Amount), "AMOUNT_MISMATCH")
	case p.Status != StatusDone:
		return nil, rejected(op, "gateway reported status "+p.Status, "NOT_DONE")
	}
	return &p, nil
}

func (c *client) Lookup(ctx context.Context, paymentKey string) (*Payment, error) {
	const op = "paygw.lookup"
	var p Payment
	path := "/v1/payments/" + url.PathEscape(strings.TrimSpace(paymentKey))
	if err := c.do(ctx, op, http.MethodGet, path, "", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *client) Cancel(ctx context.Context, paymentKey, reason string) (*Payment, error) {
	const op = "paygw.cancel"
	var p Payment
	path := "/v1/payments/" + url.PathEscape(strings.TrimSpace(paymentKey)) + "/cancel"
	body := map[string]string{"cancelReason": reason}
	if err := c.do(ctx, op, http.MethodPost, path, "", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *client) do(ctx context.Context, op, method, path, idempotencyKey string, body, out any) (err error) {
	ctx, span := observability.StartClientSpan(ctx, "paygw", op,
		attribute.String("http.request.method", method),
	)
	start := time.Now()
	status := "error"
	defer func() {
		span.SetAttributes(attribute.String("outcome", status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(domainagg.CodeOf(err)))
		}
		span.End()
		observability.Current().ObserveExternalCall("paygw", op, status, time.Since(start))
	}()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return domainagg.NewError(domainagg.CodeInternal, op, "encode request", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "build request", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		status = "unreachable"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			status = "timeout"
		}
		c.log.Warn("payment gateway unreachable", "op", op, "error", err)
		return domainagg.NewError(domainagg.CodeGatewayUnreachable, op, "payment gateway unreachable", err)
	}
	raw, readErr := httpx.ReadLimited(resp.Body, maxResponseBytes)
	_ = resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)
	if readErr != nil {
		return domainagg.NewError(domainagg.CodeGatewayUnreachable, op, "read gateway response", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pe := &ProviderError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, pe)
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			c.log.Warn("payment gateway unavailable", "op", op, "status", resp.StatusCode, "provider_code", pe.Code)
			return domainagg.NewError(domainagg.CodeGatewayUnreachable, op, "payment gateway unavailable", pe)
		}
		c.log.Info("payment gateway rejected request", "op", op, "status", resp.StatusCode, "provider_code", pe.Code)
		return &domainagg.Error{
			Code:    domainagg.CodeGatewayRejected,
			Op:      op,
			Message: strings.TrimSpace(pe.Message),
			Detail:  pe.Code,
			Cause:   pe,
		}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return domainagg.NewError(domainagg.CodeGatewayRejected, op, "undecodable gateway response", err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func rejected(op, message, code string) error {
	return domainagg.WithDetail(domainagg.CodeGatewayRejected, op, message, code)
}
