package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occupancy-monitor/internal/models"
)

// Sunday 03:00 UTC, outside business hours so the time pattern detector
// stays quiet unless a test wants it.
var quietHour = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

func presenceAt(device string, occupancy int, ts time.Time) models.PresenceEvent {
	return models.PresenceEvent{
		DeviceID:  device,
		Occupancy: occupancy,
		Kind:      models.EventHeartbeat,
		Timestamp: ts,
		SensorID:  1,
	}
}

func TestMaxOccupancyDetector(t *testing.T) {
	d := MaxOccupancyDetector{Limit: 5, Cooldown: 5 * time.Minute}

	t.Run("under limit", func(t *testing.T) {
		r := d.Detect(presenceAt("room-1", 5, quietHour), DeviceTimelineState{})
		assert.Nil(t, r.Intent)
	})

	t.Run("over limit", func(t *testing.T) {
		r := d.Detect(presenceAt("room-1", 6, quietHour), DeviceTimelineState{})
		require.NotNil(t, r.Intent)
		assert.Equal(t, models.AlertMaxOccupancy, r.Intent.Kind)
		assert.Equal(t, 1, r.Intent.Extra["exceeded_by"])
		assert.Equal(t, 5, r.Intent.Extra["limit"])
		require.NotNil(t, r.State.MaxAlertAt)
		assert.True(t, r.State.MaxAlertAt.Equal(quietHour))
	})

	t.Run("suppressed inside cooldown", func(t *testing.T) {
		state := DeviceTimelineState{LastMaxAlertAt: quietHour}
		r := d.Detect(presenceAt("room-1", 7, quietHour.Add(time.Minute)), state)
		assert.Nil(t, r.Intent)
	})

	t.Run("fires again after cooldown", func(t *testing.T) {
		state := DeviceTimelineState{LastMaxAlertAt: quietHour}
		r := d.Detect(presenceAt("room-1", 7, quietHour.Add(6*time.Minute)), state)
		require.NotNil(t, r.Intent)
		assert.Equal(t, 2, r.Intent.Extra["exceeded_by"])
	})
}

func TestIdleRoomDetector(t *testing.T) {
	d := IdleRoomDetector{Timeout: 30 * time.Minute}

	t.Run("occupied resets and clears", func(t *testing.T) {
		ts := quietHour.Add(time.Hour)
		r := d.Detect(presenceAt("room-1", 2, ts), DeviceTimelineState{LastIdleResetAt: quietHour})
		assert.Nil(t, r.Intent)
		assert.Equal(t, models.AlertIdleRoom, r.Clear)
		require.NotNil(t, r.State.IdleResetAt)
		assert.True(t, r.State.IdleResetAt.Equal(ts))
	})

	t.Run("empty within timeout", func(t *testing.T) {
		r := d.Detect(presenceAt("room-1", 0, quietHour.Add(29*time.Minute)),
			DeviceTimelineState{LastIdleResetAt: quietHour})
		assert.Nil(t, r.Intent)
		assert.Empty(t, r.Clear)
	})

	t.Run("empty past timeout", func(t *testing.T) {
		r := d.Detect(presenceAt("room-1", 0, quietHour.Add(31*time.Minute)),
			DeviceTimelineState{LastIdleResetAt: quietHour})
		require.NotNil(t, r.Intent)
		assert.Equal(t, models.AlertIdleRoom, r.Intent.Kind)
		assert.Equal(t, 30, r.Intent.Extra["idle_minutes"])
		require.NotNil(t, r.State.IdleResetAt)
	})
}

func TestAnomalousPresenceDetector(t *testing.T) {
	d := AnomalousPresenceDetector{Timeout: 2 * time.Hour}

	t.Run("not alone resets and clears", func(t *testing.T) {
		r := d.Detect(presenceAt("room-1", 0, quietHour), DeviceTimelineState{})
		assert.Nil(t, r.Intent)
		assert.Equal(t, models.AlertAbnormalPresence, r.Clear)
		require.NotNil(t, r.State.AnomalyResetAt)
	})

	t.Run("alone within timeout", func(t *testing.T) {
		r := d.Detect(presenceAt("room-1", 1, quietHour.Add(2*time.Hour)),
			DeviceTimelineState{LastAnomalyResetAt: quietHour})
		assert.Nil(t, r.Intent)
	})

	t.Run("alone past timeout", func(t *testing.T) {
		r := d.Detect(presenceAt("room-1", 1, quietHour.Add(2*time.Hour+time.Minute)),
			DeviceTimelineState{LastAnomalyResetAt: quietHour})
		require.NotNil(t, r.Intent)
		assert.Equal(t, models.AlertAbnormalPresence, r.Intent.Kind)
		assert.Equal(t, 2.0, r.Intent.Extra["duration_hours"])
	})
}

func TestTimePatternDetector(t *testing.T) {
	d := TimePatternDetector{StartHour: 8, EndHour: 18}

	monday10 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	saturday10 := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	monday19 := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		ev        models.PresenceEvent
		wantAlert bool
	}{
		{"empty during business hours", presenceAt("room-1", 0, monday10), true},
		{"occupied during business hours", presenceAt("room-1", 1, monday10), false},
		{"empty on weekend", presenceAt("room-1", 0, saturday10), false},
		{"empty after hours", presenceAt("room-1", 0, monday19), false},
		{"empty at end hour boundary", presenceAt("room-1", 0, time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := d.Detect(tc.ev, DeviceTimelineState{})
			if !tc.wantAlert {
				assert.Nil(t, r.Intent)
				return
			}
			require.NotNil(t, r.Intent)
			assert.Equal(t, models.AlertTimePattern, r.Intent.Kind)
			assert.Equal(t, int(tc.ev.Timestamp.Weekday()), r.Intent.Extra["weekday"])
			assert.Equal(t, tc.ev.Timestamp.Hour(), r.Intent.Extra["hour"])
		})
	}
}
