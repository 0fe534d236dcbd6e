package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	MQTT struct {
		Broker    string
		Username  string
		Password  string
		ClientID  string
		BaseTopic string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	}
	Kafka struct {
		Broker string
		Topic  string
	}
	Email struct {
		SMTPServer   string
		SMTPPort     int
		Username     string
		Password     string
		FromName     string
		AdminEmail   string
		ManagerEmail string
	}
	Telegram struct {
		BotToken string
		ChatIDs  []int64
	}
	API struct {
		Port     string
		BasePath string
	}
	Engine struct {
		MaxOccupancy      int
		IdleTimeout       time.Duration
		AnomalyTimeout    time.Duration
		MaxAlertCooldown  time.Duration
		BusinessStartHour int
		BusinessEndHour   int
		LaneQueueSize     int
		NotifyTimeout     time.Duration
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// MQTT settings
	cfg.MQTT.Broker = os.Getenv("MQTT_BROKER")
	cfg.MQTT.Username = os.Getenv("MQTT_USERNAME")
	cfg.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	cfg.MQTT.ClientID = os.Getenv("MQTT_CLIENT_ID")
	cfg.MQTT.BaseTopic = os.Getenv("MQTT_BASE_TOPIC")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Redis settings
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = db
	}
	if ttl, err := strconv.Atoi(os.Getenv("REDIS_TTL_SECONDS")); err == nil {
		cfg.Redis.TTL = time.Duration(ttl) * time.Second
	}

	// Kafka export settings (optional)
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")
	cfg.Email.AdminEmail = os.Getenv("ADMIN_EMAIL")
	cfg.Email.ManagerEmail = os.Getenv("MANAGER_EMAIL")

	// Telegram settings (optional)
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	for _, s := range strings.Split(os.Getenv("TELEGRAM_CHAT_IDS"), ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TELEGRAM_CHAT_IDS entry %q: %w", s, err)
		}
		cfg.Telegram.ChatIDs = append(cfg.Telegram.ChatIDs, id)
	}

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Engine settings
	if mo, err := strconv.Atoi(os.Getenv("MAX_OCCUPANCY")); err == nil {
		cfg.Engine.MaxOccupancy = mo
	}
	if ms, err := strconv.Atoi(os.Getenv("IDLE_TIMEOUT")); err == nil {
		cfg.Engine.IdleTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms, err := strconv.Atoi(os.Getenv("ANOMALY_TIMEOUT")); err == nil {
		cfg.Engine.AnomalyTimeout = time.Duration(ms) * time.Millisecond
	}
	if h, err := strconv.Atoi(os.Getenv("BUSINESS_START_HOUR")); err == nil {
		cfg.Engine.BusinessStartHour = h
	}
	if h, err := strconv.Atoi(os.Getenv("BUSINESS_END_HOUR")); err == nil {
		cfg.Engine.BusinessEndHour = h
	}
	if qs, err := strconv.Atoi(os.Getenv("LANE_QUEUE_SIZE")); err == nil {
		cfg.Engine.LaneQueueSize = qs
	}

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.MQTT.Broker == "" {
		missing = append(missing, "MQTT_BROKER")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = fmt.Sprintf("occupancy-monitor-%d", os.Getpid())
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "room"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 5 * time.Minute
	}
	if cfg.Kafka.Broker != "" && cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "alert_notification"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api"
	}
	if cfg.Engine.MaxOccupancy == 0 {
		cfg.Engine.MaxOccupancy = 5
	}
	if cfg.Engine.IdleTimeout == 0 {
		cfg.Engine.IdleTimeout = 30 * time.Minute
	}
	if cfg.Engine.AnomalyTimeout == 0 {
		cfg.Engine.AnomalyTimeout = 2 * time.Hour
	}
	if cfg.Engine.MaxAlertCooldown == 0 {
		cfg.Engine.MaxAlertCooldown = 5 * time.Minute
	}
	if cfg.Engine.BusinessStartHour == 0 {
		cfg.Engine.BusinessStartHour = 8
	}
	if cfg.Engine.BusinessEndHour == 0 {
		cfg.Engine.BusinessEndHour = 18
	}
	if cfg.Engine.LaneQueueSize == 0 {
		cfg.Engine.LaneQueueSize = 64
	}
	if cfg.Engine.NotifyTimeout == 0 {
		cfg.Engine.NotifyTimeout = 10 * time.Second
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}
