package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PacketsCaptured counts frames delivered by the capture channel
	PacketsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arpgate",
			Name:      "packets_captured_total",
			Help:      "Total number of frames delivered by the capture channel",
		},
		[]string{"interface"},
	)

	// CaptureErrors counts read errors on the capture handle
	CaptureErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arpgate",
			Name:      "capture_errors_total",
			Help:      "Total number of capture read errors",
		},
		[]string{"interface"},
	)

	// InjectionsTotal counts successfully injected frames
	InjectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arpgate",
			Name:      "injection_total",
			Help:      "Total number of frames injected",
		},
		[]string{"interface"},
	)

	// InjectionErrors counts failed injection attempts
	InjectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arpgate",
			Name:      "injection_errors_total",
			Help:      "Total number of failed frame injection attempts",
		},
		[]string{"interface"},
	)

	// ARPRepliesIngested counts ARP packets accepted by the discovery engine
	ARPRepliesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arpgate",
			Name:      "arp_ingested_total",
			Help:      "Total number of ARP packets ingested by discovery, by operation",
		},
		[]string{"operation"},
	)

	// DevicesDiscovered counts first-time device insertions
	DevicesDiscovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arpgate",
			Name:      "devices_discovered_total",
			Help:      "Total number of distinct devices inserted into the table",
		},
	)

	// PoisonFramesSent counts poison replies emitted by the blocking engine
	PoisonFramesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arpgate",
			Name:      "poison_frames_total",
			Help:      "Total number of poison replies sent, by direction",
		},
		[]string{"direction"},
	)

	// RestoreFramesSent counts restoration replies emitted on unblock/shutdown
	RestoreFramesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arpgate",
			Name:      "restore_frames_total",
			Help:      "Total number of restoration replies sent",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent; safe to call from multiple entrypoints.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(PacketsCaptured)
		prometheus.DefaultRegisterer.Register(CaptureErrors)
		prometheus.DefaultRegisterer.Register(InjectionsTotal)
		prometheus.DefaultRegisterer.Register(InjectionErrors)
		prometheus.DefaultRegisterer.Register(ARPRepliesIngested)
		prometheus.DefaultRegisterer.Register(DevicesDiscovered)
		prometheus.DefaultRegisterer.Register(PoisonFramesSent)
		prometheus.DefaultRegisterer.Register(RestoreFramesSent)
	})
}
