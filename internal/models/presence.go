package models

import "time"

// EventKind classifies a presence telemetry message.
type EventKind string

const (
	EventEnter     EventKind = "ENTER"
	EventExit      EventKind = "EXIT"
	EventHeartbeat EventKind = "HEARTBEAT"
)

// Valid reports whether k is one of the recognized event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventEnter, EventExit, EventHeartbeat:
		return true
	}
	return false
}

// PresenceEvent is one validated telemetry message from a room sensor.
// Timestamps are not guaranteed monotonic per device; events may arrive
// out of order or duplicated.
type PresenceEvent struct {
	DeviceID       string    `json:"device_id"`
	Occupancy      int       `json:"occupancy"`
	Kind           EventKind `json:"event_kind"`
	Timestamp      time.Time `json:"timestamp"`
	SensorID       int       `json:"sensor_id"`
	SignalStrength *int      `json:"signal_strength,omitempty"`
	Uptime         *int64    `json:"uptime,omitempty"`
}

// DeviceStatus is a diagnostic status message from a device. It is not
// fed to the detectors, only cached and broadcast to dashboards.
type DeviceStatus struct {
	DeviceID       string    `json:"device_id"`
	Status         string    `json:"status"`
	Occupancy      int       `json:"occupancy"`
	SignalStrength *int      `json:"signal_strength,omitempty"`
	Uptime         *int64    `json:"uptime,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
