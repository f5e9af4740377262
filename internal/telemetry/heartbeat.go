package telemetry

import (
	"context"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/transport"
)

// HeartbeatEvent is the process-level liveness payload published on the
// global heartbeat topic at the configured cadence.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Zones     []string  `json:"zones"`
	Uptime    float64   `json:"uptime_seconds"`
}

// Heartbeat publishes a HeartbeatEvent on a fixed interval for as long as
// the supervisor keeps it running. It implements suture.Service.
type Heartbeat struct {
	t        transport.Transport
	topic    string
	interval time.Duration
	zones    []string
	started  time.Time
}

// NewHeartbeat constructs a Heartbeat publishing to topic every interval,
// reporting the given zone names as alive.
func NewHeartbeat(t transport.Transport, topic string, interval time.Duration, zones []string) *Heartbeat {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	sorted := append([]string(nil), zones...)
	sort.Strings(sorted)
	return &Heartbeat{t: t, topic: topic, interval: interval, zones: sorted}
}

// Serve publishes heartbeats until ctx is canceled.
func (h *Heartbeat) Serve(ctx context.Context) error {
	logger := logging.ForComponent("heartbeat")
	h.started = time.Now()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.publish(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.publish(ctx, logger)
		}
	}
}

func (h *Heartbeat) String() string { return "heartbeat" }

func (h *Heartbeat) publish(ctx context.Context, logger zerolog.Logger) {
	event := HeartbeatEvent{
		Timestamp: time.Now().UTC(),
		Type:      "heartbeat",
		Zones:     h.zones,
		Uptime:    time.Since(h.started).Seconds(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := h.t.Publish(ctx, h.topic, payload); err != nil {
		logger.Warn().Err(err).Msg("heartbeat publish failed")
	}
}
