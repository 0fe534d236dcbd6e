package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "occupancy_"

var (
	// EventsReceived counts telemetry events by outcome: ok,
	// invalid, store_error, lane_full.
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "events_received_total",
			Help: "Total presence events by processing result",
		},
		[]string{"result"},
	)

	// AlertsRaised counts created alerts by kind.
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "alerts_raised_total",
			Help: "Total alerts raised by kind",
		},
		[]string{"kind"},
	)

	// AlertsResolved counts status transitions out of ACTIVE by mode:
	// auto or manual.
	AlertsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "alerts_resolved_total",
			Help: "Total alerts resolved or ignored by mode",
		},
		[]string{"mode"},
	)

	// NotifyFailures counts failed notification deliveries by channel.
	NotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "notify_failures_total",
			Help: "Total notification failures by channel",
		},
		[]string{"channel"},
	)

	// ActiveLanes tracks the number of per-device processing lanes.
	ActiveLanes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "active_lanes",
			Help: "Number of per-device processing lanes",
		},
	)
)
