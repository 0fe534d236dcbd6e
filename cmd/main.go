package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"occupancy-monitor/internal/api"
	"occupancy-monitor/internal/broadcast"
	"occupancy-monitor/internal/cache"
	"occupancy-monitor/internal/config"
	"occupancy-monitor/internal/db"
	"occupancy-monitor/internal/engine"
	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/mqtt"
	"occupancy-monitor/internal/notifier"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	// Live snapshot cache (optional)
	var liveCache *cache.Cache
	if cfg.Redis.Addr != "" {
		liveCache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL, logger)
		defer liveCache.Close()
	}

	// Broadcaster, notifier, engine, dispatcher
	hub := broadcast.NewHub(logger)
	notifySvc, err := notifier.New(cfg, logger)
	if err != nil {
		logger.Errorf("Failed to init notifier: %v", err)
		log.Fatalf("Notifier init failed: %v", err)
	}
	eng := engine.New(cfg, dbConn, notifySvc, hub, logger)
	dispatcher := engine.NewDispatcher(eng, cfg.Engine.LaneQueueSize, logger)

	// MQTT ingestion
	mqttSvc := mqtt.NewService(cfg, dispatcher, liveCache, hub, logger)
	if err := mqttSvc.Connect(); err != nil {
		logger.Errorf("Failed to connect to MQTT broker: %v", err)
		log.Fatalf("MQTT connection failed: %v", err)
	}

	// Start API server
	handler := api.NewHandler(dbConn, eng, liveCache, mqttSvc, hub, logger, cfg)
	router := api.NewRouter(logger, cfg, handler)
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Handle graceful shutdown: stop intake first, then drain lanes and
	// in-flight notifications.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Infof("Shutting down...")
	mqttSvc.Close()
	dispatcher.Close()
	eng.Drain()
	if err := notifySvc.Close(); err != nil {
		logger.Errorf("Notifier close failed: %v", err)
	}
	logger.Infof("Service stopped")
}
