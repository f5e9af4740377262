// Package metrics instruments the zone runtime with Prometheus counters
// and histograms: command throughput/outcome, volume recomputes, ducking
// edges, and speech-queue behavior. Mirrors the documented telemetry
// fields so operators can alert on the same warning/failure vocabulary
// the OutcomeEvents carry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradoxfx_commands_total",
			Help: "Total commands processed per zone, command, and outcome.",
		},
		[]string{"zone", "command", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paradoxfx_command_duration_seconds",
			Help:    "Wall-clock time to execute a zone command.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"zone", "command"},
	)

	CommandTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradoxfx_command_timeouts_total",
			Help: "Commands that exceeded the 30s execution umbrella.",
		},
		[]string{"zone", "command"},
	)

	VolumeRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradoxfx_background_volume_recomputes_total",
			Help: "Background volume recomputation events triggered by a duck lifecycle edge.",
		},
		[]string{"zone"},
	)

	EffectiveVolume = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paradoxfx_effective_volume",
			Help: "Current effective volume applied to a stream type in a zone.",
		},
		[]string{"zone", "stream_type"},
	)

	DuckTriggersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paradoxfx_duck_triggers_active",
			Help: "Number of active duck triggers currently held by a zone.",
		},
		[]string{"zone"},
	)

	SpeechQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paradoxfx_speech_queue_depth",
			Help: "Number of speech items waiting behind the currently playing item.",
		},
		[]string{"zone"},
	)

	SpeechDuplicatesIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradoxfx_speech_duplicates_ignored_total",
			Help: "Speech enqueue calls rejected as duplicates.",
		},
		[]string{"zone"},
	)

	QueueOverflowDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradoxfx_queue_overflow_dropped_total",
			Help: "Items dropped from a queue due to exceeding its configured limit.",
		},
		[]string{"zone", "queue"},
	)

	PlayerIPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paradoxfx_player_ipc_duration_seconds",
			Help:    "Round-trip time for a PlayerHandle operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"zone", "operation"},
	)

	PlayerIPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradoxfx_player_ipc_errors_total",
			Help: "Failed PlayerHandle operations by kind.",
		},
		[]string{"zone", "operation", "error_kind"},
	)

	TransportReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paradoxfx_transport_reconnects_total",
			Help: "Transport reconnect attempts after a disconnect.",
		},
	)

	TransportPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paradoxfx_transport_publishes_total",
			Help: "Successful transport publishes by topic.",
		},
		[]string{"topic"},
	)
)

// RecordCommand records the outcome and duration of a single dispatched command.
func RecordCommand(zone, command, outcome string, d time.Duration) {
	CommandsTotal.WithLabelValues(zone, command, outcome).Inc()
	CommandDuration.WithLabelValues(zone, command).Observe(d.Seconds())
}

// RecordPlayerIPC records a PlayerHandle round trip, and an error counter
// if the operation failed.
func RecordPlayerIPC(zone, operation string, d time.Duration, errKind string) {
	PlayerIPCDuration.WithLabelValues(zone, operation).Observe(d.Seconds())
	if errKind != "" {
		PlayerIPCErrors.WithLabelValues(zone, operation, errKind).Inc()
	}
}

// RecordTransportPublish records a successful transport publish.
func RecordTransportPublish(topic string) {
	TransportPublishes.WithLabelValues(topic).Inc()
}
