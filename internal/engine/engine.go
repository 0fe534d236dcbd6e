package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"occupancy-monitor/internal/config"
	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/metrics"
	"occupancy-monitor/internal/models"
)

// AlertFilter selects active alerts for bulk transitions. Empty fields
// are ignored; at least one must be set.
type AlertFilter struct {
	IDs      []string
	DeviceID string
	Kind     models.AlertKind
}

// Empty reports whether the filter selects nothing.
func (f AlertFilter) Empty() bool {
	return len(f.IDs) == 0 && f.DeviceID == "" && f.Kind == ""
}

// Store is the persistence surface the engine needs.
type Store interface {
	SaveEvent(ctx context.Context, ev models.PresenceEvent) error
	SaveAlert(ctx context.Context, alert models.Alert) error
	// FindActiveAlert returns the current ACTIVE alert for the device
	// and kind, or nil. A non-nil weekday additionally matches the
	// weekday recorded in the alert's extra payload.
	FindActiveAlert(ctx context.Context, deviceID string, kind models.AlertKind, weekday *int) (*models.Alert, error)
	// UpdateStatus transitions an alert out of ACTIVE. It reports
	// whether a row actually changed; transitioning a terminal or
	// missing alert changes nothing and is not an error.
	UpdateStatus(ctx context.Context, alertID string, status models.AlertStatus) (bool, error)
	BulkUpdateStatus(ctx context.Context, filter AlertFilter, status models.AlertStatus) (int, error)
	MarkNotified(ctx context.Context, alertID string, at time.Time) error
}

// Notifier delivers a raised alert to operators. Best-effort; the
// engine never retries.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// Broadcaster fans out live updates to connected dashboards.
type Broadcaster interface {
	Publish(topic string, payload any)
}

// Engine runs every detector over each event, deduplicates against
// active alerts, persists new ones, auto-resolves cleared ones, and
// hands finished alerts to the notifier and broadcaster. Process must
// be called from a single goroutine per device; the Dispatcher
// guarantees that.
type Engine struct {
	store         Store
	notifier      Notifier
	broadcaster   Broadcaster
	logger        *logging.Logger
	states        *StateRegistry
	detectors     []Detector
	notifyTimeout time.Duration
	notifyWG      sync.WaitGroup
}

func New(cfg config.Config, store Store, notifier Notifier, broadcaster Broadcaster, logger *logging.Logger) *Engine {
	return &Engine{
		store:       store,
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger,
		states:      NewStateRegistry(),
		detectors: []Detector{
			MaxOccupancyDetector{Limit: cfg.Engine.MaxOccupancy, Cooldown: cfg.Engine.MaxAlertCooldown},
			IdleRoomDetector{Timeout: cfg.Engine.IdleTimeout},
			AnomalousPresenceDetector{Timeout: cfg.Engine.AnomalyTimeout},
			TimePatternDetector{StartHour: cfg.Engine.BusinessStartHour, EndHour: cfg.Engine.BusinessEndHour},
		},
		notifyTimeout: cfg.Engine.NotifyTimeout,
	}
}

// Process evaluates one event. Failures are logged and degrade to
// "this event/alert was not fully processed"; nothing here is fatal and
// other devices are unaffected.
func (e *Engine) Process(ctx context.Context, ev models.PresenceEvent) {
	state := e.states.Get(ev.DeviceID, ev.Timestamp)
	snapshot := *state

	results := make([]Result, 0, len(e.detectors))
	for _, d := range e.detectors {
		results = append(results, d.Detect(ev, snapshot))
	}

	for _, r := range results {
		if r.Clear != "" {
			e.clearActive(ctx, ev.DeviceID, r.Clear)
		}
	}

	raised := make([]bool, len(results))
	for i, r := range results {
		if r.Intent != nil {
			raised[i] = e.raise(ctx, ev, *r.Intent)
		}
	}

	for i, r := range results {
		// A suppressed or failed raise leaves its cooldown marker
		// untouched so the next qualifying event can try again.
		if r.Intent != nil && !raised[i] {
			continue
		}
		state.apply(r.State)
	}

	if err := e.store.SaveEvent(ctx, ev); err != nil {
		e.logger.Errorf("save event failed for device %s: %v", ev.DeviceID, err)
		metrics.EventsReceived.WithLabelValues("store_error").Inc()
	} else {
		metrics.EventsReceived.WithLabelValues("ok").Inc()
	}
	e.broadcaster.Publish("presence", map[string]any{
		"device_id":  ev.DeviceID,
		"occupancy":  ev.Occupancy,
		"event_kind": ev.Kind,
		"timestamp":  ev.Timestamp,
	})
}

// clearActive auto-resolves the single active alert of the given kind,
// if any. A missing alert is a no-op, not an error. No notification is
// sent on this path.
func (e *Engine) clearActive(ctx context.Context, deviceID string, kind models.AlertKind) {
	alert, err := e.store.FindActiveAlert(ctx, deviceID, kind, nil)
	if err != nil {
		e.logger.Errorf("active alert lookup failed (device=%s kind=%s): %v", deviceID, kind, err)
		return
	}
	if alert == nil {
		return
	}
	changed, err := e.store.UpdateStatus(ctx, alert.ID, models.StatusResolved)
	if err != nil {
		e.logger.Errorf("auto-resolve failed for alert %s: %v", alert.ID, err)
		return
	}
	if !changed {
		return
	}
	e.logger.Infof("auto-resolved %s alert %s for device %s", kind, alert.ID, deviceID)
	metrics.AlertsResolved.WithLabelValues("auto").Inc()
	e.broadcaster.Publish("status", map[string]any{
		"alert_id":  alert.ID,
		"device_id": deviceID,
		"kind":      kind,
		"status":    models.StatusResolved,
		"auto":      true,
	})
}

// raise persists an alert for the intent unless an active alert
// suppresses it. Returns whether an alert was created. The notifier is
// invoked asynchronously; the broadcast happens strictly after the
// store write so listeners never see an alert the store does not have.
func (e *Engine) raise(ctx context.Context, ev models.PresenceEvent, intent AlertIntent) bool {
	switch intent.Kind {
	case models.AlertIdleRoom, models.AlertAbnormalPresence:
		existing, err := e.store.FindActiveAlert(ctx, ev.DeviceID, intent.Kind, nil)
		if err != nil {
			e.logger.Errorf("dedup lookup failed (device=%s kind=%s): %v", ev.DeviceID, intent.Kind, err)
			return false
		}
		if existing != nil {
			return false
		}
	case models.AlertTimePattern:
		weekday, _ := intent.Extra["weekday"].(int)
		existing, err := e.store.FindActiveAlert(ctx, ev.DeviceID, intent.Kind, &weekday)
		if err != nil {
			e.logger.Errorf("dedup lookup failed (device=%s kind=%s): %v", ev.DeviceID, intent.Kind, err)
			return false
		}
		if existing != nil {
			return false
		}
	}

	alert := models.Alert{
		ID:          uuid.New().String(),
		Kind:        intent.Kind,
		Status:      models.StatusActive,
		Title:       intent.Title,
		Description: intent.Description,
		Occupancy:   ev.Occupancy,
		DeviceID:    ev.DeviceID,
		TriggeredAt: ev.Timestamp,
		Extra:       intent.Extra,
	}
	if err := e.store.SaveAlert(ctx, alert); err != nil {
		e.logger.Errorf("save alert failed (device=%s kind=%s): %v", ev.DeviceID, intent.Kind, err)
		return false
	}
	e.logger.Infof("raised %s alert %s for device %s (occupancy=%d)", alert.Kind, alert.ID, alert.DeviceID, alert.Occupancy)
	metrics.AlertsRaised.WithLabelValues(string(alert.Kind)).Inc()

	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		nctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(nctx, alert); err != nil {
			e.logger.Errorf("notify failed for alert %s: %v", alert.ID, err)
			metrics.NotifyFailures.WithLabelValues("notifier").Inc()
			return
		}
		if err := e.store.MarkNotified(nctx, alert.ID, time.Now()); err != nil {
			e.logger.Errorf("mark notified failed for alert %s: %v", alert.ID, err)
		}
	}()

	e.broadcaster.Publish("alert", alert)
	return true
}

// Resolve transitions an alert to RESOLVED. Idempotent: resolving an
// already-terminal or missing alert is a no-op.
func (e *Engine) Resolve(ctx context.Context, alertID string) error {
	return e.transition(ctx, alertID, models.StatusResolved)
}

// Ignore transitions an alert to IGNORED. Idempotent like Resolve.
func (e *Engine) Ignore(ctx context.Context, alertID string) error {
	return e.transition(ctx, alertID, models.StatusIgnored)
}

func (e *Engine) transition(ctx context.Context, alertID string, status models.AlertStatus) error {
	changed, err := e.store.UpdateStatus(ctx, alertID, status)
	if err != nil {
		return err
	}
	if changed {
		metrics.AlertsResolved.WithLabelValues("manual").Inc()
		e.broadcaster.Publish("status", map[string]any{
			"alert_id": alertID,
			"status":   status,
			"auto":     false,
		})
	}
	return nil
}

// BulkResolve resolves all matching active alerts and returns how many
// changed.
func (e *Engine) BulkResolve(ctx context.Context, filter AlertFilter) (int, error) {
	count, err := e.store.BulkUpdateStatus(ctx, filter, models.StatusResolved)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.AlertsResolved.WithLabelValues("manual").Add(float64(count))
		e.broadcaster.Publish("status", map[string]any{
			"bulk":     true,
			"resolved": count,
			"status":   models.StatusResolved,
		})
	}
	return count, nil
}

// Drain waits for in-flight notification goroutines. Called during
// shutdown after the dispatcher lanes have drained.
func (e *Engine) Drain() {
	e.notifyWG.Wait()
}
