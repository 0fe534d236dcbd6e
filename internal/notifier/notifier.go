package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/segmentio/kafka-go"

	"occupancy-monitor/internal/config"
	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/metrics"
	"occupancy-monitor/internal/models"
	"occupancy-monitor/internal/utils"
)

// Service routes raised alerts to operator channels. Email decides the
// Notify outcome; telegram and the kafka export are best-effort mirrors
// whose failures are logged only.
type Service struct {
	cfg    config.Config
	logger *logging.Logger
	tg     *bot.Bot
	writer *kafka.Writer
}

func New(cfg config.Config, logger *logging.Logger) (*Service, error) {
	s := &Service{cfg: cfg, logger: logger}

	if cfg.Telegram.BotToken != "" {
		b, err := bot.New(cfg.Telegram.BotToken)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
		s.tg = b
	}

	if cfg.Kafka.Broker != "" {
		s.writer = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Broker),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		}
	}

	return s, nil
}

// Notify delivers the alert. The returned error reflects the email
// channel only; the engine marks notified=true when it is nil.
func (s *Service) Notify(ctx context.Context, alert models.Alert) error {
	subject := fmt.Sprintf("Alert: %s", alert.Title)
	body := composeBody(alert)

	s.exportKafka(ctx, alert)
	s.sendTelegram(ctx, subject, body)

	to := s.recipient(alert.Kind)
	if to == "" {
		return fmt.Errorf("no recipient configured for %s alerts", alert.Kind)
	}
	return utils.Retry(s.logger, 3, 2*time.Second, func() error {
		return s.sendEmail(to, subject, body)
	})
}

// recipient maps alert kinds to the operator responsible for them.
// Safety-relevant kinds go to the admin, utilization kinds to the
// manager.
func (s *Service) recipient(kind models.AlertKind) string {
	switch kind {
	case models.AlertMaxOccupancy, models.AlertAbnormalPresence:
		return s.cfg.Email.AdminEmail
	case models.AlertIdleRoom, models.AlertTimePattern:
		return s.cfg.Email.ManagerEmail
	}
	return ""
}

func composeBody(alert models.Alert) string {
	body := fmt.Sprintf("%s\n\nDevice: %s\nOccupancy: %d\nTriggered: %s",
		alert.Description,
		alert.DeviceID,
		alert.Occupancy,
		alert.TriggeredAt.Format(time.RFC1123),
	)
	for key, value := range alert.Extra {
		body += fmt.Sprintf("\n%s: %v", key, value)
	}
	return body
}

func (s *Service) sendTelegram(ctx context.Context, subject, body string) {
	if s.tg == nil || len(s.cfg.Telegram.ChatIDs) == 0 {
		return
	}
	text := fmt.Sprintf("*%s*\n%s", subject, body)
	for _, chatID := range s.cfg.Telegram.ChatIDs {
		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := s.tg.SendMessage(ctx, params); err != nil {
			s.logger.Errorf("failed to send telegram message to chat_id %d: %v", chatID, err)
			metrics.NotifyFailures.WithLabelValues("telegram").Inc()
		}
	}
}

// Close flushes the kafka writer. Safe to call when no export is
// configured.
func (s *Service) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
