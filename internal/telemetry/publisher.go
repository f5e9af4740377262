package telemetry

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/metrics"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/transport"
)

// Publisher is the Sink implementation used in production: it serializes
// events as JSON and publishes them to a zone's events topic over the
// shared Transport.
type Publisher struct {
	t transport.Transport
	// EventsTopic computes the events topic for a given zone, e.g.
	// func(zone string) string { return zone + "/events" }.
	EventsTopic func(zone string) string
	// StatusTopic computes the status topic for a given zone. Defaults to
	// "<zone>/status" when nil.
	StatusTopic func(zone string) string
}

var _ Sink = (*Publisher)(nil)

// NewPublisher returns a Publisher that publishes over t, deriving each
// zone's events and status topics from the given functions.
func NewPublisher(t transport.Transport, eventsFn, statusFn func(zone string) string) *Publisher {
	if statusFn == nil {
		statusFn = func(zone string) string { return zone + "/status" }
	}
	return &Publisher{t: t, EventsTopic: eventsFn, StatusTopic: statusFn}
}

// Outcome implements Sink.
func (p *Publisher) Outcome(ctx context.Context, event OutcomeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outcome event: %w", err)
	}
	topic := p.EventsTopic(event.Zone)
	if err := p.t.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish outcome event: %w", err)
	}
	return nil
}

// Recompute implements Sink.
func (p *Publisher) Recompute(ctx context.Context, event RecomputeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal recompute event: %w", err)
	}
	topic := p.EventsTopic(event.Zone)
	if err := p.t.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish recompute event: %w", err)
	}
	metrics.VolumeRecomputes.WithLabelValues(event.Zone).Inc()
	metrics.EffectiveVolume.WithLabelValues(event.Zone, "background").Set(float64(event.EffectiveVolume))
	return nil
}

// Status implements Sink.
func (p *Publisher) Status(ctx context.Context, event StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	topic := p.StatusTopic(event.Zone)
	if err := p.t.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}
