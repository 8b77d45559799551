package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SitesLed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "uisync",
		Subsystem: "session",
		Name:      "sites_led",
		Help:      "Number of sites that currently have a leader",
	})

	Followers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "uisync",
		Subsystem: "session",
		Name:      "followers",
		Help:      "Number of connections following a site",
	})

	LeaderChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uisync",
		Subsystem: "session",
		Name:      "leader_changes_total",
		Help:      "Leadership transitions by kind",
	}, []string{"kind"})

	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uisync",
		Subsystem: "session",
		Name:      "mutations_total",
		Help:      "State mutations by outcome",
	}, []string{"status"})

	StorageOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uisync",
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Total site store operations",
	}, []string{"operation"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "uisync",
		Subsystem: "transport",
		Name:      "connections_active",
		Help:      "Open websocket connections",
	})

	ConnectionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uisync",
		Subsystem: "transport",
		Name:      "connections_closed_total",
		Help:      "Closed websocket connections by reason",
	}, []string{"reason"})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uisync",
		Subsystem: "transport",
		Name:      "frames_total",
		Help:      "Websocket frames by direction",
	}, []string{"direction"})

	EmitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uisync",
		Subsystem: "broadcast",
		Name:      "emits_total",
		Help:      "Outbound events by delivery intent and event name",
	}, []string{"intent", "event"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uisync",
		Subsystem: "dispatch",
		Name:      "events_total",
		Help:      "Inbound events by name and outcome",
	}, []string{"event", "status"})

	EventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "uisync",
		Subsystem: "dispatch",
		Name:      "duration_seconds",
		Help:      "Inbound event handling duration",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20),
	}, []string{"event"})

	GRPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uisync",
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total admin gRPC requests",
	}, []string{"service", "method", "code"})

	GRPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "uisync",
		Subsystem: "grpc",
		Name:      "request_duration_seconds",
		Help:      "Admin gRPC request duration",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
	}, []string{"service", "method"})
)
