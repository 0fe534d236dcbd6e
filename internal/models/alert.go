package models

import "time"

// AlertKind identifies which detector produced an alert.
type AlertKind string

const (
	AlertMaxOccupancy     AlertKind = "MAX_OCCUPANCY"
	AlertIdleRoom         AlertKind = "IDLE_ROOM"
	AlertAbnormalPresence AlertKind = "ABNORMAL_PRESENCE"
	AlertTimePattern      AlertKind = "TIME_PATTERN"
)

// Valid reports whether k is one of the recognized alert kinds.
func (k AlertKind) Valid() bool {
	switch k {
	case AlertMaxOccupancy, AlertIdleRoom, AlertAbnormalPresence, AlertTimePattern:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert. RESOLVED and IGNORED
// are terminal.
type AlertStatus string

const (
	StatusActive   AlertStatus = "ACTIVE"
	StatusResolved AlertStatus = "RESOLVED"
	StatusIgnored  AlertStatus = "IGNORED"
)

// Terminal reports whether s admits no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusIgnored
}

// Alert is an operator-facing anomaly record. Created only by the alert
// engine; transitioned by explicit resolve/ignore actions or by
// auto-resolution. Never deleted by the engine.
type Alert struct {
	ID          string         `json:"id"`
	Kind        AlertKind      `json:"kind"`
	Status      AlertStatus    `json:"status"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Occupancy   int            `json:"occupancy"`
	DeviceID    string         `json:"device_id"`
	TriggeredAt time.Time      `json:"triggered_at"`
	Extra       map[string]any `json:"extra,omitempty"`
	Notified    bool           `json:"notified"`
	NotifiedAt  *time.Time     `json:"notified_at,omitempty"`
}
