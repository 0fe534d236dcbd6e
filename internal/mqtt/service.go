package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"occupancy-monitor/internal/cache"
	"occupancy-monitor/internal/config"
	"occupancy-monitor/internal/engine"
	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/metrics"
	"occupancy-monitor/internal/models"
)

// Service is the broker-facing edge: it subscribes to the device
// topics, validates presence payloads, and hands events to the
// dispatcher. It also carries the single outbound device call, the
// command publish.
type Service struct {
	client      mqtt.Client
	cfg         config.Config
	dispatcher  *engine.Dispatcher
	cache       *cache.Cache
	broadcaster engine.Broadcaster
	logger      *logging.Logger
}

func NewService(cfg config.Config, dispatcher *engine.Dispatcher, liveCache *cache.Cache, broadcaster engine.Broadcaster, logger *logging.Logger) *Service {
	return &Service{
		cfg:         cfg,
		dispatcher:  dispatcher,
		cache:       liveCache,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Connect dials the broker and subscribes. Subscriptions are re-issued
// automatically after a reconnect.
func (s *Service) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.MQTT.Broker)
	opts.SetClientID(s.cfg.MQTT.ClientID)
	if s.cfg.MQTT.Username != "" {
		opts.SetUsername(s.cfg.MQTT.Username)
	}
	if s.cfg.MQTT.Password != "" {
		opts.SetPassword(s.cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.logger.Infof("connected to MQTT broker %s", s.cfg.MQTT.Broker)
		s.subscribe()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Errorf("MQTT connection lost: %v", err)
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

func (s *Service) subscribe() {
	base := s.cfg.MQTT.BaseTopic
	presenceTopics := []string{base + "/presence", base + "/+/presence"}
	statusTopics := []string{base + "/status", base + "/+/status"}

	for _, topic := range presenceTopics {
		if token := s.client.Subscribe(topic, 1, s.handlePresence); token.Wait() && token.Error() != nil {
			s.logger.Errorf("failed to subscribe to %s: %v", topic, token.Error())
		} else {
			s.logger.Infof("subscribed to topic %s", topic)
		}
	}
	for _, topic := range statusTopics {
		if token := s.client.Subscribe(topic, 1, s.handleStatus); token.Wait() && token.Error() != nil {
			s.logger.Errorf("failed to subscribe to %s: %v", topic, token.Error())
		} else {
			s.logger.Infof("subscribed to topic %s", topic)
		}
	}
}

// handlePresence validates a telemetry payload and submits it. Invalid
// payloads are dropped with a log line; they never abort processing of
// subsequent events.
func (s *Service) handlePresence(_ mqtt.Client, msg mqtt.Message) {
	var raw map[string]any
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.logger.Warnf("invalid presence payload on %s: %v", msg.Topic(), err)
		metrics.EventsReceived.WithLabelValues("invalid").Inc()
		return
	}

	ev, err := engine.ValidateEvent(raw, time.Now())
	if err != nil {
		s.logger.Warnf("dropped presence event from %s: %v", msg.Topic(), err)
		metrics.EventsReceived.WithLabelValues("invalid").Inc()
		return
	}

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.cache.SetPresence(ctx, ev); err != nil {
			s.logger.Warnf("presence cache update failed for device %s: %v", ev.DeviceID, err)
		}
		cancel()
	}

	s.dispatcher.Submit(ev)
}

// handleStatus caches and broadcasts a device diagnostic message. Not
// fed to the detectors.
func (s *Service) handleStatus(_ mqtt.Client, msg mqtt.Message) {
	var status models.DeviceStatus
	if err := json.Unmarshal(msg.Payload(), &status); err != nil {
		s.logger.Warnf("invalid status payload on %s: %v", msg.Topic(), err)
		return
	}
	if status.DeviceID == "" {
		s.logger.Warnf("status payload on %s has no device_id", msg.Topic())
		return
	}
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.cache.SetStatus(ctx, status); err != nil {
			s.logger.Warnf("status cache update failed for device %s: %v", status.DeviceID, err)
		}
		cancel()
	}

	s.broadcaster.Publish("status", status)
}

// SendCommand publishes a command to one device. This is the only
// outbound device call.
func (s *Service) SendCommand(deviceID, command string, data map[string]any) error {
	if s.client == nil || !s.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	message := map[string]any{
		"command":   command,
		"timestamp": time.Now().UnixMilli(),
	}
	for key, value := range data {
		message[key] = value
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/command", s.cfg.MQTT.BaseTopic, deviceID)
	if token := s.client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish command to %s: %w", topic, token.Error())
	}
	s.logger.Infof("sent %s command to device %s", command, deviceID)
	return nil
}

// SendConfig pushes detection settings to a device.
func (s *Service) SendConfig(deviceID string, settings map[string]any) error {
	return s.SendCommand(deviceID, "CONFIG", settings)
}

// SendAlert forwards an alert indication to a device.
func (s *Service) SendAlert(deviceID, kind, message string) error {
	return s.SendCommand(deviceID, "ALERT", map[string]any{
		"kind":    kind,
		"message": message,
	})
}

// Connected reports the broker connection state, for the health
// endpoint.
func (s *Service) Connected() bool {
	return s.client != nil && s.client.IsConnected()
}

// Close disconnects from the broker.
func (s *Service) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
		s.logger.Infof("disconnected from MQTT broker")
	}
}
