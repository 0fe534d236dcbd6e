package engine

import (
	"sync"
	"time"
)

// DeviceTimelineState holds the per-device cooldown and hysteresis
// markers. It is owned by the device's processing lane, so no locking
// is needed on the fields themselves. State lives only for the process
// lifetime; a restart resets all windows.
type DeviceTimelineState struct {
	DeviceID string

	// LastMaxAlertAt is the timestamp of the last MAX_OCCUPANCY alert.
	// Zero until the first one fires.
	LastMaxAlertAt time.Time

	// LastIdleResetAt is the last observation with occupancy > 0,
	// anchored at first contact for a new device.
	LastIdleResetAt time.Time

	// LastAnomalyResetAt is the last observation with occupancy != 1,
	// anchored at first contact for a new device.
	LastAnomalyResetAt time.Time
}

// apply merges a StateUpdate. Markers only move forward: an update
// carrying an older timestamp than the current marker is discarded, so
// out-of-order events cannot rewind a window.
func (s *DeviceTimelineState) apply(u StateUpdate) {
	if u.MaxAlertAt != nil && u.MaxAlertAt.After(s.LastMaxAlertAt) {
		s.LastMaxAlertAt = *u.MaxAlertAt
	}
	if u.IdleResetAt != nil && u.IdleResetAt.After(s.LastIdleResetAt) {
		s.LastIdleResetAt = *u.IdleResetAt
	}
	if u.AnomalyResetAt != nil && u.AnomalyResetAt.After(s.LastAnomalyResetAt) {
		s.LastAnomalyResetAt = *u.AnomalyResetAt
	}
}

// StateRegistry maps device ids to their timeline state. Only the
// lookup is synchronized; the returned state must be touched only from
// the device's own lane.
type StateRegistry struct {
	mu     sync.Mutex
	states map[string]*DeviceTimelineState
}

func NewStateRegistry() *StateRegistry {
	return &StateRegistry{states: make(map[string]*DeviceTimelineState)}
}

// Get returns the state for deviceID, creating it on first access with
// the idle and anomaly markers anchored at firstSeen. A brand-new
// device therefore starts its timeout windows at first contact instead
// of firing immediately.
func (r *StateRegistry) Get(deviceID string, firstSeen time.Time) *DeviceTimelineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[deviceID]
	if !ok {
		st = &DeviceTimelineState{
			DeviceID:           deviceID,
			LastIdleResetAt:    firstSeen,
			LastAnomalyResetAt: firstSeen,
		}
		r.states[deviceID] = st
	}
	return st
}

// Len returns the number of tracked devices.
func (r *StateRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}
