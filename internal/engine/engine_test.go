package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occupancy-monitor/internal/config"
	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/models"
)

type fakeStore struct {
	mu           sync.Mutex
	events       []models.PresenceEvent
	alerts       []*models.Alert
	notified     map[string]time.Time
	saveAlertErr error
	saveEventErr error
	findErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{notified: make(map[string]time.Time)}
}

func (s *fakeStore) SaveEvent(_ context.Context, ev models.PresenceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveEventErr != nil {
		return s.saveEventErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) SaveAlert(_ context.Context, alert models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveAlertErr != nil {
		return s.saveAlertErr
	}
	s.alerts = append(s.alerts, &alert)
	return nil
}

func (s *fakeStore) FindActiveAlert(_ context.Context, deviceID string, kind models.AlertKind, weekday *int) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, a := range s.alerts {
		if a.Status != models.StatusActive || a.DeviceID != deviceID || a.Kind != kind {
			continue
		}
		if weekday != nil {
			wd, ok := a.Extra["weekday"].(int)
			if !ok || wd != *weekday {
				continue
			}
		}
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, alertID string, status models.AlertStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == alertID && a.Status == models.StatusActive {
			a.Status = status
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) BulkUpdateStatus(_ context.Context, filter AlertFilter, status models.AlertStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		ids[id] = true
	}
	count := 0
	for _, a := range s.alerts {
		if a.Status != models.StatusActive {
			continue
		}
		if len(filter.IDs) > 0 && !ids[a.ID] {
			continue
		}
		if filter.DeviceID != "" && a.DeviceID != filter.DeviceID {
			continue
		}
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		a.Status = status
		count++
	}
	return count, nil
}

func (s *fakeStore) MarkNotified(_ context.Context, alertID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified[alertID] = at
	return nil
}

func (s *fakeStore) activeCount(deviceID string, kind models.AlertKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if a.Status == models.StatusActive && a.DeviceID == deviceID && a.Kind == kind {
			n++
		}
	}
	return n
}

func (s *fakeStore) alertsOf(kind models.AlertKind) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.Kind == kind {
			out = append(out, *a)
		}
	}
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, alert models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []struct {
		Topic   string
		Payload any
	}
}

func (b *fakeBroadcaster) Publish(topic string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, struct {
		Topic   string
		Payload any
	}{topic, payload})
}

func (b *fakeBroadcaster) onTopic(topic string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, m := range b.messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Engine.MaxOccupancy = 5
	cfg.Engine.IdleTimeout = 30 * time.Minute
	cfg.Engine.AnomalyTimeout = 2 * time.Hour
	cfg.Engine.MaxAlertCooldown = 5 * time.Minute
	cfg.Engine.BusinessStartHour = 8
	cfg.Engine.BusinessEndHour = 18
	cfg.Engine.LaneQueueSize = 16
	cfg.Engine.NotifyTimeout = time.Second
	return cfg
}

func newTestEngine(store Store, notifier Notifier) (*Engine, *fakeBroadcaster) {
	bc := &fakeBroadcaster{}
	return New(testConfig(), store, notifier, bc, logging.NewNop()), bc
}

func TestEngineMaxOccupancyCooldown(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	eng, _ := newTestEngine(store, notifier)
	ctx := context.Background()

	eng.Process(ctx, presenceAt("room-1", 6, quietHour))
	alerts := store.alertsOf(models.AlertMaxOccupancy)
	require.Len(t, alerts, 1)
	assert.Equal(t, 1, alerts[0].Extra["exceeded_by"])
	assert.Equal(t, 6, alerts[0].Occupancy)

	// Still over the limit one minute later, inside the cooldown.
	eng.Process(ctx, presenceAt("room-1", 7, quietHour.Add(time.Minute)))
	assert.Len(t, store.alertsOf(models.AlertMaxOccupancy), 1)

	// Past the cooldown a second alert fires even though the first is
	// still active.
	eng.Process(ctx, presenceAt("room-1", 7, quietHour.Add(6*time.Minute)))
	assert.Len(t, store.alertsOf(models.AlertMaxOccupancy), 2)

	eng.Drain()
	assert.Equal(t, 2, notifier.count())
}

func TestEngineIdleRoomRoundTrip(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	eng, bc := newTestEngine(store, notifier)
	ctx := context.Background()

	// First contact anchors the idle window; no alert yet.
	eng.Process(ctx, presenceAt("room-1", 0, quietHour))
	assert.Empty(t, store.alertsOf(models.AlertIdleRoom))

	eng.Process(ctx, presenceAt("room-1", 0, quietHour.Add(31*time.Minute)))
	require.Equal(t, 1, store.activeCount("room-1", models.AlertIdleRoom))

	// Another 31 empty minutes would re-trigger, but the active alert
	// suppresses it.
	eng.Process(ctx, presenceAt("room-1", 0, quietHour.Add(62*time.Minute)))
	assert.Equal(t, 1, store.activeCount("room-1", models.AlertIdleRoom))
	assert.Len(t, store.alertsOf(models.AlertIdleRoom), 1)

	// Someone walks in: the alert auto-resolves, no notification.
	eng.Drain()
	before := notifier.count()
	eng.Process(ctx, presenceAt("room-1", 2, quietHour.Add(63*time.Minute)))
	eng.Drain()
	assert.Equal(t, 0, store.activeCount("room-1", models.AlertIdleRoom))
	assert.Equal(t, before, notifier.count())

	statuses := bc.onTopic("status")
	require.NotEmpty(t, statuses)
	last, ok := statuses[len(statuses)-1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, last["auto"])
	assert.Equal(t, models.StatusResolved, last["status"])
}

func TestEngineAbnormalPresence(t *testing.T) {
	store := newFakeStore()
	eng, _ := newTestEngine(store, &fakeNotifier{})
	ctx := context.Background()

	eng.Process(ctx, presenceAt("room-1", 1, quietHour))
	assert.Empty(t, store.alertsOf(models.AlertAbnormalPresence))

	// Same lone occupant two hours and a minute later.
	eng.Process(ctx, presenceAt("room-1", 1, quietHour.Add(2*time.Hour+time.Minute)))
	require.Equal(t, 1, store.activeCount("room-1", models.AlertAbnormalPresence))

	// Active alert suppresses a re-trigger.
	eng.Process(ctx, presenceAt("room-1", 1, quietHour.Add(4*time.Hour+2*time.Minute)))
	assert.Len(t, store.alertsOf(models.AlertAbnormalPresence), 1)

	// Room empties out: auto-resolve.
	eng.Process(ctx, presenceAt("room-1", 0, quietHour.Add(4*time.Hour+3*time.Minute)))
	assert.Equal(t, 0, store.activeCount("room-1", models.AlertAbnormalPresence))
}

func TestEngineTimePatternPerWeekday(t *testing.T) {
	store := newFakeStore()
	eng, _ := newTestEngine(store, &fakeNotifier{})
	ctx := context.Background()

	monday := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	eng.Process(ctx, presenceAt("room-1", 0, monday))
	require.Len(t, store.alertsOf(models.AlertTimePattern), 1)

	// Same weekday: deduplicated.
	eng.Process(ctx, presenceAt("room-1", 0, monday.Add(20*time.Minute)))
	assert.Len(t, store.alertsOf(models.AlertTimePattern), 1)

	// Tuesday is a separate dedup bucket.
	eng.Process(ctx, presenceAt("room-1", 0, monday.Add(24*time.Hour)))
	assert.Len(t, store.alertsOf(models.AlertTimePattern), 2)
}

func TestEngineOutOfOrderEvent(t *testing.T) {
	store := newFakeStore()
	eng, _ := newTestEngine(store, &fakeNotifier{})
	ctx := context.Background()

	eng.Process(ctx, presenceAt("room-1", 3, quietHour.Add(10*time.Minute)))
	st := eng.states.Get("room-1", quietHour)
	require.True(t, st.LastIdleResetAt.Equal(quietHour.Add(10*time.Minute)))

	// A stale empty reading from before the occupied one must not
	// rewind the windows or raise anything.
	eng.Process(ctx, presenceAt("room-1", 0, quietHour))
	assert.Empty(t, store.alertsOf(models.AlertIdleRoom))
	assert.True(t, st.LastIdleResetAt.Equal(quietHour.Add(10*time.Minute)))
	assert.True(t, st.LastAnomalyResetAt.Equal(quietHour.Add(10*time.Minute)))
}

func TestEnginePersistenceFailureIsolated(t *testing.T) {
	store := newFakeStore()
	eng, bc := newTestEngine(store, &fakeNotifier{})
	ctx := context.Background()

	store.mu.Lock()
	store.saveAlertErr = errors.New("db down")
	store.mu.Unlock()

	eng.Process(ctx, presenceAt("room-1", 6, quietHour))
	assert.Empty(t, store.alertsOf(models.AlertMaxOccupancy))
	// The event itself is still persisted and broadcast.
	store.mu.Lock()
	assert.Len(t, store.events, 1)
	store.mu.Unlock()
	assert.Len(t, bc.onTopic("presence"), 1)

	// The cooldown marker was not advanced by the failed raise, so the
	// next event retries immediately once the store recovers.
	store.mu.Lock()
	store.saveAlertErr = nil
	store.mu.Unlock()
	eng.Process(ctx, presenceAt("room-1", 6, quietHour.Add(time.Minute)))
	assert.Len(t, store.alertsOf(models.AlertMaxOccupancy), 1)
}

func TestEngineNotifierFailureKeepsAlert(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	eng, _ := newTestEngine(store, notifier)

	eng.Process(context.Background(), presenceAt("room-1", 6, quietHour))
	eng.Drain()

	alerts := store.alertsOf(models.AlertMaxOccupancy)
	require.Len(t, alerts, 1)
	store.mu.Lock()
	_, marked := store.notified[alerts[0].ID]
	store.mu.Unlock()
	assert.False(t, marked)
}

func TestEngineNotifySuccessMarksAlert(t *testing.T) {
	store := newFakeStore()
	eng, _ := newTestEngine(store, &fakeNotifier{})

	eng.Process(context.Background(), presenceAt("room-1", 6, quietHour))
	eng.Drain()

	alerts := store.alertsOf(models.AlertMaxOccupancy)
	require.Len(t, alerts, 1)
	store.mu.Lock()
	_, marked := store.notified[alerts[0].ID]
	store.mu.Unlock()
	assert.True(t, marked)
}

func TestEngineResolveIdempotent(t *testing.T) {
	store := newFakeStore()
	eng, bc := newTestEngine(store, &fakeNotifier{})
	ctx := context.Background()

	eng.Process(ctx, presenceAt("room-1", 6, quietHour))
	alerts := store.alertsOf(models.AlertMaxOccupancy)
	require.Len(t, alerts, 1)
	id := alerts[0].ID

	require.NoError(t, eng.Resolve(ctx, id))
	require.NoError(t, eng.Resolve(ctx, id))
	require.NoError(t, eng.Ignore(ctx, id))

	alerts = store.alertsOf(models.AlertMaxOccupancy)
	assert.Equal(t, models.StatusResolved, alerts[0].Status)
	// Only the first transition broadcasts.
	assert.Len(t, bc.onTopic("status"), 1)

	// Resolving an unknown id is a no-op.
	require.NoError(t, eng.Resolve(ctx, "no-such-alert"))
}

func TestEngineBulkResolve(t *testing.T) {
	store := newFakeStore()
	eng, _ := newTestEngine(store, &fakeNotifier{})
	ctx := context.Background()

	eng.Process(ctx, presenceAt("room-1", 6, quietHour))
	eng.Process(ctx, presenceAt("room-2", 8, quietHour))

	count, err := eng.BulkResolve(ctx, AlertFilter{Kind: models.AlertMaxOccupancy})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, store.activeCount("room-1", models.AlertMaxOccupancy))
	assert.Equal(t, 0, store.activeCount("room-2", models.AlertMaxOccupancy))

	count, err = eng.BulkResolve(ctx, AlertFilter{Kind: models.AlertMaxOccupancy})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// At most one IDLE_ROOM and one ABNORMAL_PRESENCE alert per device may
// be active at any point, whatever the event sequence looks like.
func TestEngineSingleActiveInvariant(t *testing.T) {
	store := newFakeStore()
	eng, _ := newTestEngine(store, &fakeNotifier{})
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	ts := quietHour
	for i := 0; i < 300; i++ {
		step := time.Duration(rng.Intn(40)-5) * time.Minute
		ts = ts.Add(step)
		eng.Process(ctx, presenceAt("room-1", rng.Intn(4), ts))

		assert.LessOrEqual(t, store.activeCount("room-1", models.AlertIdleRoom), 1)
		assert.LessOrEqual(t, store.activeCount("room-1", models.AlertAbnormalPresence), 1)
	}
	eng.Drain()
}
