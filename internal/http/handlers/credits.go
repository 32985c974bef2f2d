package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/atelier-backend/internal/http/response"
	"github.com/yungbote/atelier-backend/internal/services"
)

type CreditHandler struct {
	credits services.CreditService
}

func NewCreditHandler(credits services.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits}
}

// GET /api/credits?limit=N
func (h *CreditHandler) GetBalance(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	v, err := h.credits.Balance(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"paidCredits":  v.PaidCredits,
		"transactions": v.Transactions,
	})
}
