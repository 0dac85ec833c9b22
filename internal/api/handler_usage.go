package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/model"
)

type startUsageRequest struct {
	TotalSets   int `json:"total_sets"`
	RestSeconds int `json:"rest_seconds"`
}

// StartUsage handles POST /api/equipment/:id/usage.
func (h *Handler) StartUsage(c *gin.Context) {
	equipmentID, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	var req startUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("invalid_request", "request body must be JSON"))
		return
	}

	usage, err := h.coord.StartUsage(c.Request.Context(), equipmentID, currentUser(c), req.TotalSets, req.RestSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, usage)
}

// CompleteSet handles POST /api/equipment/:id/usage/complete-set.
func (h *Handler) CompleteSet(c *gin.Context) {
	h.usageTransition(c, h.coord.CompleteSet)
}

// SkipRest handles POST /api/equipment/:id/usage/skip-rest.
func (h *Handler) SkipRest(c *gin.Context) {
	h.usageTransition(c, h.coord.SkipRest)
}

// StopUsage handles POST /api/equipment/:id/usage/stop.
func (h *Handler) StopUsage(c *gin.Context) {
	h.usageTransition(c, h.coord.StopUsage)
}

func (h *Handler) usageTransition(c *gin.Context, op func(ctx context.Context, equipmentID, userID int64) (*model.UsageRecord, error)) {
	equipmentID, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	usage, err := op(c.Request.Context(), equipmentID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}
