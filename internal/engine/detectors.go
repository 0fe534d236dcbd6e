package engine

import (
	"fmt"
	"time"

	"occupancy-monitor/internal/models"
)

// AlertIntent is a detector's request to raise an alert. The engine
// decides whether it survives deduplication and persists it.
type AlertIntent struct {
	Kind        models.AlertKind
	Title       string
	Description string
	Extra       map[string]any
}

// StateUpdate carries the timeline markers a detector wants moved
// forward. Nil fields are left untouched.
type StateUpdate struct {
	MaxAlertAt     *time.Time
	IdleResetAt    *time.Time
	AnomalyResetAt *time.Time
}

// Result is the outcome of running one detector over one event. At most
// one of Intent and Clear is set.
type Result struct {
	Intent *AlertIntent
	Clear  models.AlertKind // zero value means nothing to clear
	State  StateUpdate
}

// Detector is a pure decision function over an event and a snapshot of
// the device's timeline state. Detectors perform no I/O; persistence
// and notification belong to the engine.
type Detector interface {
	Name() string
	Detect(ev models.PresenceEvent, state DeviceTimelineState) Result
}

// MaxOccupancyDetector fires when occupancy exceeds the configured
// limit. Re-triggers for the same device are suppressed within the
// cooldown window, independent of whether an earlier alert is still
// active.
type MaxOccupancyDetector struct {
	Limit    int
	Cooldown time.Duration
}

func (d MaxOccupancyDetector) Name() string { return "max_occupancy" }

func (d MaxOccupancyDetector) Detect(ev models.PresenceEvent, state DeviceTimelineState) Result {
	if ev.Occupancy <= d.Limit {
		return Result{}
	}
	if !state.LastMaxAlertAt.IsZero() && ev.Timestamp.Sub(state.LastMaxAlertAt) <= d.Cooldown {
		return Result{}
	}
	ts := ev.Timestamp
	return Result{
		Intent: &AlertIntent{
			Kind:  models.AlertMaxOccupancy,
			Title: "Maximum occupancy exceeded",
			Description: fmt.Sprintf("Room %s reached %d people, exceeding the limit of %d",
				ev.DeviceID, ev.Occupancy, d.Limit),
			Extra: map[string]any{
				"limit":       d.Limit,
				"exceeded_by": ev.Occupancy - d.Limit,
			},
		},
		State: StateUpdate{MaxAlertAt: &ts},
	}
}

// IdleRoomDetector fires when the room has been empty longer than the
// idle timeout. Any event with occupancy > 0 resets the window and
// clears an active idle alert.
type IdleRoomDetector struct {
	Timeout time.Duration
}

func (d IdleRoomDetector) Name() string { return "idle_room" }

func (d IdleRoomDetector) Detect(ev models.PresenceEvent, state DeviceTimelineState) Result {
	ts := ev.Timestamp
	if ev.Occupancy > 0 {
		return Result{
			Clear: models.AlertIdleRoom,
			State: StateUpdate{IdleResetAt: &ts},
		}
	}
	if ev.Timestamp.Sub(state.LastIdleResetAt) <= d.Timeout {
		return Result{}
	}
	return Result{
		Intent: &AlertIntent{
			Kind:  models.AlertIdleRoom,
			Title: "Idle room detected",
			Description: fmt.Sprintf("Room %s has been empty for more than %d minutes",
				ev.DeviceID, int(d.Timeout.Minutes())),
			Extra: map[string]any{
				"idle_minutes":  int(d.Timeout.Minutes()),
				"last_activity": state.LastIdleResetAt,
			},
		},
		State: StateUpdate{IdleResetAt: &ts},
	}
}

// AnomalousPresenceDetector fires when exactly one person has been in
// the room longer than the anomaly timeout. Any event with occupancy
// != 1 resets the window and clears an active alert.
type AnomalousPresenceDetector struct {
	Timeout time.Duration
}

func (d AnomalousPresenceDetector) Name() string { return "anomalous_presence" }

func (d AnomalousPresenceDetector) Detect(ev models.PresenceEvent, state DeviceTimelineState) Result {
	ts := ev.Timestamp
	if ev.Occupancy != 1 {
		return Result{
			Clear: models.AlertAbnormalPresence,
			State: StateUpdate{AnomalyResetAt: &ts},
		}
	}
	if ev.Timestamp.Sub(state.LastAnomalyResetAt) <= d.Timeout {
		return Result{}
	}
	return Result{
		Intent: &AlertIntent{
			Kind:  models.AlertAbnormalPresence,
			Title: "Abnormal presence detected",
			Description: fmt.Sprintf("One person has been alone in room %s for more than %.0f hours",
				ev.DeviceID, d.Timeout.Hours()),
			Extra: map[string]any{
				"duration_hours": d.Timeout.Hours(),
				"started_at":     state.LastAnomalyResetAt,
			},
		},
		State: StateUpdate{AnomalyResetAt: &ts},
	}
}

// TimePatternDetector fires when the room is empty during business
// hours. Deduplication is per device and weekday, handled by the
// engine.
type TimePatternDetector struct {
	StartHour int
	EndHour   int
}

func (d TimePatternDetector) Name() string { return "time_pattern" }

func (d TimePatternDetector) Detect(ev models.PresenceEvent, state DeviceTimelineState) Result {
	hour := ev.Timestamp.Hour()
	weekday := ev.Timestamp.Weekday()
	businessHours := hour >= d.StartHour && hour <= d.EndHour &&
		weekday >= time.Monday && weekday <= time.Friday
	if !businessHours || ev.Occupancy != 0 {
		return Result{}
	}
	return Result{
		Intent: &AlertIntent{
			Kind:  models.AlertTimePattern,
			Title: "Abnormal time pattern",
			Description: fmt.Sprintf("Room %s empty during business hours (%dh, %s)",
				ev.DeviceID, hour, weekday),
			Extra: map[string]any{
				"hour":    hour,
				"weekday": int(weekday),
			},
		},
	}
}
