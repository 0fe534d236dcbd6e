package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"occupancy-monitor/internal/cache"
	"occupancy-monitor/internal/config"
	"occupancy-monitor/internal/db"
	"occupancy-monitor/internal/engine"
	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/models"
	"occupancy-monitor/internal/mqtt"
)

type Handler struct {
	db        *db.DB
	engine    *engine.Engine
	cache     *cache.Cache
	mqtt      *mqtt.Service
	hub       Hub
	logger    *logging.Logger
	cfg       config.Config
	startedAt time.Time
}

func NewHandler(db *db.DB, eng *engine.Engine, liveCache *cache.Cache, mqttSvc *mqtt.Service, hub Hub, logger *logging.Logger, cfg config.Config) *Handler {
	return &Handler{
		db:        db,
		engine:    eng,
		cache:     liveCache,
		mqtt:      mqttSvc,
		hub:       hub,
		logger:    logger,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"timestamp":      time.Now(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"mqtt_connected": h.mqtt.Connected(),
	})
}

func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"max_occupancy":       h.cfg.Engine.MaxOccupancy,
		"idle_timeout_ms":     h.cfg.Engine.IdleTimeout.Milliseconds(),
		"anomaly_timeout_ms":  h.cfg.Engine.AnomalyTimeout.Milliseconds(),
		"business_start_hour": h.cfg.Engine.BusinessStartHour,
		"business_end_hour":   h.cfg.Engine.BusinessEndHour,
	})
}

func (h *Handler) GetActiveAlerts(c *gin.Context) {
	alerts, err := h.db.ActiveAlerts(c.Request.Context(), c.Query("device_id"))
	if err != nil {
		h.logger.Errorf("Get active alerts failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts, "count": len(alerts)})
}

func (h *Handler) GetAlertStats(c *gin.Context) {
	days := 7
	if d, err := strconv.Atoi(c.Query("days")); err == nil && d > 0 {
		days = d
	}
	stats, err := h.db.AlertStats(c.Request.Context(), c.Query("device_id"), days)
	if err != nil {
		h.logger.Errorf("Get alert stats failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "by_kind": stats})
}

func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.db.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Errorf("Get alert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if alert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Resolve(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Resolve alert %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert resolved", "id": id})
}

func (h *Handler) IgnoreAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Ignore(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Ignore alert %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert ignored", "id": id})
}

func (h *Handler) BulkResolveAlerts(c *gin.Context) {
	var req struct {
		IDs      []string `json:"ids"`
		DeviceID string   `json:"device_id"`
		Kind     string   `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter := engine.AlertFilter{
		IDs:      req.IDs,
		DeviceID: req.DeviceID,
		Kind:     models.AlertKind(req.Kind),
	}
	if filter.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Must provide ids, device_id or kind"})
		return
	}
	count, err := h.engine.BulkResolve(c.Request.Context(), filter)
	if err != nil {
		h.logger.Errorf("Bulk resolve failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": count})
}

// CreateTestAlert inserts a synthetic alert, used to exercise the
// notification and dashboard paths without real telemetry.
func (h *Handler) CreateTestAlert(c *gin.Context) {
	var req struct {
		Kind      string `json:"kind" binding:"required"`
		DeviceID  string `json:"device_id" binding:"required"`
		Occupancy int    `json:"occupancy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := models.AlertKind(req.Kind)
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown alert kind"})
		return
	}

	alert := models.Alert{
		ID:          uuid.New().String(),
		Kind:        kind,
		Status:      models.StatusActive,
		Title:       "Test: " + string(kind),
		Description: "Synthetic test alert",
		Occupancy:   req.Occupancy,
		DeviceID:    req.DeviceID,
		TriggeredAt: time.Now(),
	}
	if err := h.db.SaveAlert(c.Request.Context(), alert); err != nil {
		h.logger.Errorf("Create test alert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.hub.Publish("alert", alert)
	c.JSON(http.StatusCreated, gin.H{"data": alert})
}

func (h *Handler) GetLatestPresence(c *gin.Context) {
	events, err := h.db.LatestEvents(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Get latest presence failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events, "count": len(events)})
}

// GetLivePresence serves the cached snapshot for one device, including
// its last diagnostic status when available.
func (h *Handler) GetLivePresence(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live cache not configured"})
		return
	}
	deviceID := c.Param("device_id")
	presence, err := h.cache.GetPresence(c.Request.Context(), deviceID)
	if err != nil {
		h.logger.Errorf("Live presence lookup failed for %s: %v", deviceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if presence == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No live data for device"})
		return
	}
	status, err := h.cache.GetStatus(c.Request.Context(), deviceID)
	if err != nil {
		h.logger.Warnf("Live status lookup failed for %s: %v", deviceID, err)
	}
	c.JSON(http.StatusOK, gin.H{"presence": presence, "status": status})
}

// SendDeviceConfig pushes detection settings down to a device over the
// broker.
func (h *Handler) SendDeviceConfig(c *gin.Context) {
	deviceID := c.Param("device_id")
	var settings map[string]any
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.mqtt.SendConfig(deviceID, settings); err != nil {
		h.logger.Errorf("Send config to %s failed: %v", deviceID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration sent", "device_id": deviceID})
}
