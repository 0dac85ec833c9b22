package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers a browser push subscription for the caller.
// Re-registering an endpoint moves it to the caller.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("invalid_request", "endpoint, p256dh and auth are required"))
		return
	}

	sub := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		UserID:   currentUser(c),
	}
	if err := h.store.UpsertSubscription(c.Request.Context(), &sub); err != nil {
		writeError(c, apperr.Internal(err, "failed to save subscription"))
		return
	}
	c.Status(http.StatusCreated)
}

// GetSubscriptions lists the caller's registered endpoints.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	subs, err := h.store.SubscriptionsForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, apperr.Internal(err, "failed to load subscriptions"))
		return
	}
	endpoints := make([]string, len(subs))
	for i, s := range subs {
		endpoints[i] = s.Endpoint
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the caller's endpoints.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("invalid_request", "endpoint is required"))
		return
	}
	if err := h.store.DeleteSubscription(c.Request.Context(), currentUser(c), req.Endpoint); err != nil {
		writeError(c, apperr.Internal(err, "failed to delete subscription"))
		return
	}
	c.Status(http.StatusNoContent)
}
