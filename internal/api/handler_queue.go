package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JoinQueue handles POST /api/equipment/:id/queue.
func (h *Handler) JoinQueue(c *gin.Context) {
	equipmentID, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	entry, err := h.coord.Join(c.Request.Context(), equipmentID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// CancelQueueEntry handles DELETE /api/queue/:entry_id.
func (h *Handler) CancelQueueEntry(c *gin.Context) {
	entryID, err := pathID(c, "entry_id")
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.coord.Cancel(c.Request.Context(), entryID, currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
