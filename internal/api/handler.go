package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"equipment-queue-backend/internal/apperr"
	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/logger"
	"equipment-queue-backend/internal/mw"
	"equipment-queue-backend/internal/queue"
	"equipment-queue-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	coord   *queue.Coordinator
	store   store.Store
	hub     *broadcast.Hub
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(coord *queue.Coordinator, s store.Store, hub *broadcast.Hub, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		coord:   coord,
		store:   s,
		hub:     hub,
		webpush: webpushOptions,
	}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error":{"code","message"}} with the status of its kind.
func writeError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = &apperr.Error{Kind: apperr.KindInternal, Code: "internal", Message: "internal server error"}
	}
	status := statusFor(ae.Kind)

	body := gin.H{"error": gin.H{"code": ae.Code, "message": ae.Message}}
	if ae.Kind == apperr.KindRateLimited {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(ae.RetryAfter.Seconds()))))
		body["retry_after_ms"] = ae.RetryAfter.Milliseconds()
	}
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg(apperr.StackLines(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("invalid_"+name, name+" must be a positive integer")
	}
	return id, nil
}

// parseIDList parses a comma separated list such as "1,2,3". Empty input yields nil.
func parseIDList(raw, name string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, apperr.Invalid("invalid_"+name, name+" must be a comma separated list of ids")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// currentUser returns the authenticated caller. Routes using it sit behind mw.RequireUser.
func currentUser(c *gin.Context) int64 {
	id, _ := mw.UserID(c)
	return id
}
