package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"equipment-queue-backend/internal/mw"
)

func viewer(c *gin.Context) *int64 {
	if id, ok := mw.UserID(c); ok {
		return &id
	}
	return nil
}

// GetStatuses handles GET /api/equipment/status?ids=1,2. Without ids every
// piece of equipment is returned.
func (h *Handler) GetStatuses(c *gin.Context) {
	ids, err := parseIDList(c.Query("ids"), "ids")
	if err != nil {
		writeError(c, err)
		return
	}
	statuses, err := h.coord.Status(c.Request.Context(), ids, viewer(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"equipment": statuses})
}

// GetStatus handles GET /api/equipment/:id/status.
func (h *Handler) GetStatus(c *gin.Context) {
	equipmentID, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	status, err := h.coord.StatusOne(c.Request.Context(), equipmentID, viewer(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// RefreshETA handles POST /api/equipment/:id/eta/refresh.
func (h *Handler) RefreshETA(c *gin.Context) {
	equipmentID, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	status, err := h.coord.RefreshETA(c.Request.Context(), equipmentID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
