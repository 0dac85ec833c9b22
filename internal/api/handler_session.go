package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"equipment-queue-backend/internal/queue"
)

// Logout handles POST /api/session/logout. Token revocation is the identity
// service's job; this releases everything the user holds.
func (h *Handler) Logout(c *gin.Context) {
	h.cleanup(c, queue.ReasonLogout)
}

// DeleteAccount handles DELETE /api/users/me.
func (h *Handler) DeleteAccount(c *gin.Context) {
	h.cleanup(c, queue.ReasonAccountDeleted)
}

// cleanup always answers 200 with the summary; a partial cleanup is flagged
// in the body rather than failing the request.
func (h *Handler) cleanup(c *gin.Context, reason queue.CleanupReason) {
	summary, err := h.coord.CleanupUserActivities(c.Request.Context(), currentUser(c), reason)
	c.JSON(http.StatusOK, gin.H{
		"reason":  reason,
		"summary": summary,
		"partial": err != nil,
	})
}
