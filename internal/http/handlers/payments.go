package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/atelier-backend/internal/http/response"
	"github.com/yungbote/atelier-backend/internal/platform/apierr"
	"github.com/yungbote/atelier-backend/internal/platform/httpx"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/platform/paygw"
	"github.com/yungbote/atelier-backend/internal/services"
)

const maxWebhookBytes = 64 << 10

type PaymentHandler struct {
	log      *logger.Logger
	payments services.PaymentService
	catalog  *services.CreditCatalog
}

func NewPaymentHandler(log *logger.Logger, payments services.PaymentService, catalog *services.CreditCatalog) *PaymentHandler {
	return &PaymentHandler{log: log.With("handler", "PaymentHandler"), payments: payments, catalog: catalog}
}

type createOrderRequest struct {
	PackageID string `json:"packageId"`
	OrderID   string `json:"orderId"`
}

type confirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// GET /api/payments/packages
func (h *PaymentHandler) ListPackages(c *gin.Context) {
	response.RespondOK(c, gin.H{"packages": h.catalog.List()})
}

// POST /api/payments/orders
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", errors.New("malformed request body"))
		return
	}
	order, err := h.payments.CreateOrder(c.Request.Context(), services.CreateOrderInput{PackageID: req.PackageID, OrderID: req.OrderID})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"orderId":   order.ID,
		"packageId": order.PackageID,
		"amount":    order.Amount,
		"credits":   order.Credits,
		"status":    order.Status,
	})
}

// GET /api/payments/orders/:id
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	order, err := h.payments.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	body := gin.H{"order": order}
	// An unreadable snapshot is audit data gone bad; the order itself is still served.
	snap, err := order.Snapshot()
	if err != nil {
		h.log.Warn("gateway snapshot unreadable", "order_id", order.ID, "error", err)
	} else if snap != nil {
		body["gatewaySnapshot"] = snap
	}
	response.RespondOK(c, body)
}

// POST /api/payments/confirm
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_input", errors.New("malformed request body"))
		return
	}
	res, err := h.payments.Confirm(c.Request.Context(), services.ConfirmInput{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderID,
		Amount:     req.Amount,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"success":      res.Success,
		"orderId":      res.OrderID,
		"credits":      res.Credits,
		"balanceAfter": res.BalanceAfter,
		"replayed":     res.Replayed,
	})
}

// POST /api/payments/webhook
//
// Failures answer with a bare status so nothing about the ledger leaks to an
// unauthenticated sender; 5xx makes the gateway redeliver.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := httpx.ReadLimited(c.Request.Body, maxWebhookBytes)
	if err != nil {
		c.AbortWithStatus(http.StatusRequestEntityTooLarge)
		return
	}
	res, err := h.payments.HandleWebhook(c.Request.Context(), raw, c.GetHeader(paygw.SignatureHeader))
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(apierr.FromError(err).Status)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "outcome": res.Outcome})
}
