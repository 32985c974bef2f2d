package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/atelier-backend/internal/domain/generation"
	"github.com/yungbote/atelier-backend/internal/http/response"
	"github.com/yungbote/atelier-backend/internal/services"
)

type GenerationHandler struct {
	generations services.GenerationService
}

func NewGenerationHandler(generations services.GenerationService) *GenerationHandler {
	return &GenerationHandler{generations: generations}
}

// GET /api/generations/:id
func (h *GenerationHandler) GetStatus(c *gin.Context) {
	v, err := h.generations.CheckStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	body := gin.H{"id": v.JobID, "status": v.Status}
	switch v.Status {
	case generation.JobStatusSucceeded:
		body["imageUrl"] = v.ImageURL
	case generation.JobStatusFailed, generation.JobStatusCanceled:
		body["error"] = v.Error
	}
	response.RespondOK(c, body)
}

// POST /api/generations/:id/claim
func (h *GenerationHandler) Claim(c *gin.Context) {
	job, err := h.generations.ClaimJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"id": job.ID, "ownerId": job.OwnerID, "status": job.Status})
}
