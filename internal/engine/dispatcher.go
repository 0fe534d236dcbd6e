package engine

import (
	"context"
	"sync"

	"occupancy-monitor/internal/logging"
	"occupancy-monitor/internal/metrics"
	"occupancy-monitor/internal/models"
)

// Processor consumes validated events one at a time per device.
type Processor interface {
	Process(ctx context.Context, ev models.PresenceEvent)
}

// Dispatcher fans events out to one sequential lane per device. Events
// for the same device are processed in submission order with no
// interleaving; different devices run concurrently. Submit never blocks
// the ingestion source: a full lane drops the event with a log line.
type Dispatcher struct {
	processor Processor
	logger    *logging.Logger
	queueSize int

	mu     sync.Mutex
	lanes  map[string]chan models.PresenceEvent
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(processor Processor, queueSize int, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		processor: processor,
		logger:    logger,
		queueSize: queueSize,
		lanes:     make(map[string]chan models.PresenceEvent),
	}
}

// Submit enqueues the event on its device's lane, creating the lane on
// first sight of the device.
func (d *Dispatcher) Submit(ev models.PresenceEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warnf("dispatcher closed, dropping event from device %s", ev.DeviceID)
		return
	}
	lane, ok := d.lanes[ev.DeviceID]
	if !ok {
		lane = make(chan models.PresenceEvent, d.queueSize)
		d.lanes[ev.DeviceID] = lane
		metrics.ActiveLanes.Set(float64(len(d.lanes)))
		d.wg.Add(1)
		go d.run(ev.DeviceID, lane)
	}
	select {
	case lane <- ev:
	default:
		d.logger.Errorf("lane full for device %s, dropping event", ev.DeviceID)
		metrics.EventsReceived.WithLabelValues("lane_full").Inc()
	}
}

func (d *Dispatcher) run(deviceID string, lane chan models.PresenceEvent) {
	defer d.wg.Done()
	for ev := range lane {
		d.processor.Process(context.Background(), ev)
	}
	d.logger.Debugf("lane for device %s drained", deviceID)
}

// Close stops accepting events and blocks until every lane has drained
// its queue. No partial-event processing is left pending.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, lane := range d.lanes {
		close(lane)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
