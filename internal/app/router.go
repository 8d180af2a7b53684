// internal/app/router.go
package app

import (
	"net/http"

	accessHandler "loadboard-service/internal/handlers/access"
	sessionHandler "loadboard-service/internal/handlers/session"
	subscriptionHandler "loadboard-service/internal/handlers/subscription"
	wsHandler "loadboard-service/internal/handlers/websocket"
	"loadboard-service/internal/middleware"
	"loadboard-service/internal/service/access"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	SessionHandler    *sessionHandler.SessionHandler
	AccessHandler     *accessHandler.AccessHandler
	PurchaseHandler   *subscriptionHandler.PurchaseHandler
	WSHandler         *wsHandler.WebSocketHandler
	SessionMiddleware *middleware.SessionMiddleware
	MetricsGatherer   prometheus.Gatherer
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Metrics ====================
	if h.MetricsGatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.MetricsGatherer, promhttp.HandlerOpts{})))
	}

	// ==================== State stream ====================
	r.GET("/ws/state", h.WSHandler.HandleConnection)
	api.GET("/ws/stats", h.WSHandler.GetStats)

	// ==================== Session ====================
	sessions := api.Group("/session")
	{
		sessions.GET("/state", h.SessionHandler.GetState)
		sessions.GET("/route", h.SessionHandler.GetRoute)
		sessions.POST("/sign-in", h.SessionHandler.SignIn)
		sessions.POST("/sign-up", h.SessionHandler.SignUp)
		sessions.POST("/sign-up/profile", h.SessionHandler.RetryProfile)
		sessions.POST("/sign-out", h.SessionHandler.SignOut)
		sessions.POST("/refresh", h.SessionHandler.Refresh)
		sessions.POST("/token/refresh", h.SessionMiddleware.RequireSignedIn(), h.SessionHandler.RefreshToken)
	}

	// ==================== Capabilities ====================
	api.GET("/capabilities", h.AccessHandler.ListCapabilities)
	api.GET("/capabilities/:capability", h.AccessHandler.CheckCapability)

	// ==================== Subscription ====================
	subscription := api.Group("/subscription")
	subscription.Use(h.SessionMiddleware.RequireSignedIn())
	{
		subscription.POST("/purchase", h.PurchaseHandler.Purchase)
		subscription.POST("/restore", h.PurchaseHandler.Restore)
	}

	// ==================== Gated features ====================
	gate := h.SessionMiddleware.RequireCapability
	api.GET("/listings", gate(access.BrowseListings), h.AccessHandler.Probe(access.BrowseListings))
	api.GET("/listings/compose", gate(access.CreateListing), h.AccessHandler.Probe(access.CreateListing))
	api.GET("/messages", gate(access.Messaging), h.AccessHandler.Probe(access.Messaging))
	api.GET("/tracking", gate(access.VehicleTracking), h.AccessHandler.Probe(access.VehicleTracking))
	api.GET("/badge", gate(access.PlusBadge), h.AccessHandler.Probe(access.PlusBadge))
}
