package engine

import (
	"encoding/json"
	"time"

	"occupancy-monitor/internal/models"
)

// ValidateEvent normalizes a raw telemetry payload into a PresenceEvent.
// sensor_id defaults to 1 and timestamp to now when absent. The function
// has no side effects; callers drop invalid events and keep going.
func ValidateEvent(raw map[string]any, now time.Time) (models.PresenceEvent, error) {
	var ev models.PresenceEvent

	deviceID, ok := raw["device_id"].(string)
	if !ok || deviceID == "" {
		return ev, &MissingFieldError{Field: "device_id"}
	}

	occupancy, ok := asInt(raw["occupancy"])
	if !ok {
		return ev, &MissingFieldError{Field: "occupancy"}
	}
	if occupancy < 0 {
		return ev, &InvalidValueError{Field: "occupancy", Reason: "must be >= 0"}
	}

	kindStr, ok := raw["event_kind"].(string)
	if !ok || kindStr == "" {
		return ev, &MissingFieldError{Field: "event_kind"}
	}
	kind := models.EventKind(kindStr)
	if !kind.Valid() {
		return ev, &InvalidEnumError{Field: "event_kind", Value: kindStr}
	}

	ev.DeviceID = deviceID
	ev.Occupancy = occupancy
	ev.Kind = kind

	ev.Timestamp = now
	if ts, ok := asTime(raw["timestamp"]); ok {
		ev.Timestamp = ts
	}

	ev.SensorID = 1
	if id, ok := asInt(raw["sensor_id"]); ok {
		ev.SensorID = id
	}

	if rssi, ok := asInt(raw["signal_strength"]); ok {
		ev.SignalStrength = &rssi
	}
	if up, ok := asInt64(raw["uptime"]); ok {
		ev.Uptime = &up
	}

	return ev, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	n, ok := asInt(v)
	return int64(n), ok
}

// asTime accepts epoch milliseconds (the sensor wire format) or an
// RFC3339 string.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)), true
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(t), true
	case json.Number:
		ms, err := t.Int64()
		if err != nil || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
