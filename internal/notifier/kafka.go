package notifier

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"occupancy-monitor/internal/metrics"
	"occupancy-monitor/internal/models"
)

// exportKafka mirrors the raised alert to the alert_notification topic
// for downstream consumers. Best-effort: failures are logged, never
// surfaced.
func (s *Service) exportKafka(ctx context.Context, alert models.Alert) {
	if s.writer == nil {
		return
	}
	value, err := json.Marshal(alert)
	if err != nil {
		s.logger.Errorf("failed to marshal alert %s for kafka export: %v", alert.ID, err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(alert.DeviceID),
		Value: value,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Errorf("failed to export alert %s to kafka: %v", alert.ID, err)
		metrics.NotifyFailures.WithLabelValues("kafka").Inc()
	}
}
