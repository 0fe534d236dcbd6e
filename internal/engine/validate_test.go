package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occupancy-monitor/internal/models"
)

func TestValidateEvent_Success(t *testing.T) {
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	sent := time.Date(2026, 3, 1, 2, 59, 30, 0, time.UTC)

	raw := map[string]any{
		"device_id":       "room-101",
		"occupancy":       float64(3),
		"event_kind":      "ENTER",
		"timestamp":       float64(sent.UnixMilli()),
		"sensor_id":       float64(2),
		"signal_strength": float64(-61),
		"uptime":          float64(86400),
	}

	ev, err := ValidateEvent(raw, now)
	require.NoError(t, err)
	assert.Equal(t, "room-101", ev.DeviceID)
	assert.Equal(t, 3, ev.Occupancy)
	assert.Equal(t, models.EventEnter, ev.Kind)
	assert.True(t, ev.Timestamp.Equal(sent))
	assert.Equal(t, 2, ev.SensorID)
	require.NotNil(t, ev.SignalStrength)
	assert.Equal(t, -61, *ev.SignalStrength)
	require.NotNil(t, ev.Uptime)
	assert.Equal(t, int64(86400), *ev.Uptime)
}

func TestValidateEvent_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

	ev, err := ValidateEvent(map[string]any{
		"device_id":  "room-101",
		"occupancy":  float64(0),
		"event_kind": "HEARTBEAT",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.SensorID)
	assert.True(t, ev.Timestamp.Equal(now))
	assert.Nil(t, ev.SignalStrength)
	assert.Nil(t, ev.Uptime)
}

func TestValidateEvent_Errors(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		raw     map[string]any
		wantErr any
	}{
		{
			name:    "missing device_id",
			raw:     map[string]any{"occupancy": float64(1), "event_kind": "ENTER"},
			wantErr: &MissingFieldError{},
		},
		{
			name:    "empty device_id",
			raw:     map[string]any{"device_id": "", "occupancy": float64(1), "event_kind": "ENTER"},
			wantErr: &MissingFieldError{},
		},
		{
			name:    "missing occupancy",
			raw:     map[string]any{"device_id": "room-101", "event_kind": "ENTER"},
			wantErr: &MissingFieldError{},
		},
		{
			name:    "missing event_kind",
			raw:     map[string]any{"device_id": "room-101", "occupancy": float64(1)},
			wantErr: &MissingFieldError{},
		},
		{
			name:    "unknown event_kind",
			raw:     map[string]any{"device_id": "room-101", "occupancy": float64(1), "event_kind": "LEAVE"},
			wantErr: &InvalidEnumError{},
		},
		{
			name:    "negative occupancy",
			raw:     map[string]any{"device_id": "room-101", "occupancy": float64(-1), "event_kind": "EXIT"},
			wantErr: &InvalidValueError{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateEvent(tc.raw, now)
			require.Error(t, err)
			assert.IsType(t, tc.wantErr, err)
		})
	}
}
