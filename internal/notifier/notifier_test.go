package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occupancy-monitor/internal/config"
	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/models"
)

func testService(t *testing.T) *Service {
	t.Helper()
	var cfg config.Config
	cfg.Email.AdminEmail = "admin@example.com"
	cfg.Email.ManagerEmail = "manager@example.com"
	s, err := New(cfg, logging.NewNop())
	require.NoError(t, err)
	return s
}

func TestRecipientRouting(t *testing.T) {
	s := testService(t)

	assert.Equal(t, "admin@example.com", s.recipient(models.AlertMaxOccupancy))
	assert.Equal(t, "admin@example.com", s.recipient(models.AlertAbnormalPresence))
	assert.Equal(t, "manager@example.com", s.recipient(models.AlertIdleRoom))
	assert.Equal(t, "manager@example.com", s.recipient(models.AlertTimePattern))
	assert.Empty(t, s.recipient(models.AlertKind("UNKNOWN")))
}

func TestComposeBody(t *testing.T) {
	alert := models.Alert{
		Kind:        models.AlertMaxOccupancy,
		Title:       "Maximum occupancy exceeded",
		Description: "Room room-101 reached 7 people, exceeding the limit of 5",
		Occupancy:   7,
		DeviceID:    "room-101",
		TriggeredAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Extra:       map[string]any{"limit": 5, "exceeded_by": 2},
	}

	body := composeBody(alert)
	assert.Contains(t, body, alert.Description)
	assert.Contains(t, body, "Device: room-101")
	assert.Contains(t, body, "Occupancy: 7")
	assert.Contains(t, body, "limit: 5")
	assert.Contains(t, body, "exceeded_by: 2")
}

func TestSendEmailRejectsBadAddress(t *testing.T) {
	s := testService(t)
	err := s.sendEmail("not-an-address", "subject", "body")
	require.Error(t, err)
}

func TestCloseWithoutKafka(t *testing.T) {
	s := testService(t)
	assert.NoError(t, s.Close())
}
