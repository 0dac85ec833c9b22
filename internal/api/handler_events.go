package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"equipment-queue-backend/internal/broadcast"
)

const sseKeepAlive = 25 * time.Second

// StreamEquipmentEvents handles GET /api/events?equipment=1,2 as a
// server-sent event stream of the given equipment rooms.
func (h *Handler) StreamEquipmentEvents(c *gin.Context) {
	ids, err := parseIDList(c.Query("equipment"), "equipment")
	if err != nil {
		writeError(c, err)
		return
	}
	if len(ids) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_equipment", "message": "equipment is required"},
		})
		return
	}

	clientID := uuid.NewString()
	events := h.hub.SubscribeRooms(clientID, ids)
	defer h.hub.Unsubscribe(clientID)
	h.stream(c, events)
}

// StreamUserEvents handles GET /api/events/me: the caller's private stream.
func (h *Handler) StreamUserEvents(c *gin.Context) {
	clientID := uuid.NewString()
	events := h.hub.SubscribeUser(clientID, currentUser(c))
	defer h.hub.Unsubscribe(clientID)
	h.stream(c, events)
}

func (h *Handler) stream(c *gin.Context, events <-chan broadcast.Event) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}
