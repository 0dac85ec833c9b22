package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"equipment-queue-backend/config"
	"equipment-queue-backend/internal/logger"
	"equipment-queue-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler, tokens *mw.TokenValidator) *gin.Engine {
	r := gin.New()
	r.Use(logger.GinLogger(), logger.GinRecovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", handler.Health)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Status responses change with every transition, so the cache only
	// absorbs bursts of identical anonymous polls.
	caching := mw.NewStatusCache(time.Duration(cfg.CacheTTLSeconds) * time.Second).Middleware()

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Identity(tokens))
	{
		// Anonymous reads
		api.GET("/equipment/status", caching, handler.GetStatuses)
		api.GET("/equipment/:id/status", caching, handler.GetStatus)
		api.GET("/events", handler.StreamEquipmentEvents)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		authed := api.Group("")
		authed.Use(mw.RequireUser())
		{
			authed.POST("/equipment/:id/usage", handler.StartUsage)
			authed.POST("/equipment/:id/usage/complete-set", handler.CompleteSet)
			authed.POST("/equipment/:id/usage/skip-rest", handler.SkipRest)
			authed.POST("/equipment/:id/usage/stop", handler.StopUsage)

			authed.POST("/equipment/:id/queue", handler.JoinQueue)
			authed.DELETE("/queue/:entry_id", handler.CancelQueueEntry)

			authed.POST("/equipment/:id/eta/refresh", handler.RefreshETA)

			authed.POST("/session/logout", handler.Logout)
			authed.DELETE("/users/me", handler.DeleteAccount)

			authed.GET("/events/me", handler.StreamUserEvents)

			authed.GET("/subscriptions", handler.GetSubscriptions)
			authed.PUT("/subscriptions", handler.PutSubscription)
			authed.DELETE("/subscriptions", handler.DeleteSubscription)
		}
	}

	return r
}
