package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"occupancy-monitor/internal/config"
	"occupancy-monitor/internal/logging"
)

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", h.Health)
	r.GET("/ws", h.Websocket)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(cfg.API.BasePath)
	{
		api.GET("/config", h.GetConfig)

		// Alerts
		api.GET("/alerts/active", h.GetActiveAlerts)
		api.GET("/alerts/stats", h.GetAlertStats)
		api.GET("/alerts/:id", h.GetAlert)
		api.PATCH("/alerts/:id/resolve", h.ResolveAlert)
		api.PATCH("/alerts/:id/ignore", h.IgnoreAlert)
		api.POST("/alerts/bulk-resolve", h.BulkResolveAlerts)
		api.POST("/alerts/test", h.CreateTestAlert)

		// Presence
		api.GET("/presence/latest", h.GetLatestPresence)
		api.GET("/presence/:device_id/live", h.GetLivePresence)

		// Devices
		api.POST("/devices/:device_id/config", h.SendDeviceConfig)
	}

	return r
}
