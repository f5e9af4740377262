// Package router subscribes per zone to its commands topic, decodes and
// validates JSON, dispatches to the zone's state machine, and fans
// cross-zone duck triggers out to sibling audio zones.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/transport"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/zone"
)

// ZoneRoute is a single zone's subscription target and dispatch handle.
type ZoneRoute struct {
	Name         string
	CommandTopic string
	Machine      *zone.Machine
	// Audio reports whether this zone participates in cross-zone duck
	// fan-out (screen zones do not receive other zones' duck triggers).
	Audio bool
}

// Router subscribes to every configured zone's commands topic and
// dispatches decoded commands to the corresponding zone.Machine.
type Router struct {
	t      transport.Transport
	sink   telemetry.Sink
	routes map[string]ZoneRoute
}

// New constructs a Router over transport t, publishing validation-failure
// telemetry through sink, for the given zone routes.
func New(t transport.Transport, sink telemetry.Sink, routes []ZoneRoute) *Router {
	byName := make(map[string]ZoneRoute, len(routes))
	for _, r := range routes {
		byName[r.Name] = r
	}
	return &Router{t: t, sink: sink, routes: byName}
}

var _ zone.DuckNotifier = (*Router)(nil)

// Serve subscribes to every zone's commands topic and processes deliveries
// until ctx is canceled. It implements suture.Service.
func (r *Router) Serve(ctx context.Context) error {
	logger := logging.ForComponent("router")

	for _, route := range r.routes {
		// Legacy controllers publish on the singular "<base>/command"
		// topic; both flavors are accepted and canonicalized downstream.
		topics := []string{route.CommandTopic}
		if legacy := strings.TrimSuffix(route.CommandTopic, "s"); legacy != route.CommandTopic {
			topics = append(topics, legacy)
		}
		for _, topic := range topics {
			ch, err := r.t.Subscribe(ctx, topic)
			if err != nil {
				return fmt.Errorf("subscribe to %s: %w", topic, err)
			}
			go r.consume(ctx, route, ch)
		}
	}

	logger.Info().Int("zones", len(r.routes)).Msg("router started")
	<-ctx.Done()
	logger.Info().Msg("router stopped")
	return ctx.Err()
}

func (r *Router) String() string { return "router" }

func (r *Router) consume(ctx context.Context, route ZoneRoute, messages <-chan transport.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handleDelivery(ctx, route, msg)
			if msg.Ack != nil {
				msg.Ack()
			}
		}
	}
}

// handleDelivery decodes, validates shape, and dispatches with panic
// capture; cross-zone fan-out happens separately, driven by DuckNotifier
// calls from each zone Machine's duck-trigger reconciliation.
func (r *Router) handleDelivery(ctx context.Context, route ZoneRoute, msg transport.Message) {
	var raw map[string]any
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		r.publishWarning(ctx, route.Name, telemetry.ErrMalformedJSON, string(msg.Payload))
		return
	}

	if _, ok := commandName(raw); !ok {
		r.publishWarning(ctx, route.Name, telemetry.ErrInvalidCommandShape, string(msg.Payload))
		return
	}

	r.dispatch(ctx, route, raw)
}

func (r *Router) dispatch(ctx context.Context, route ZoneRoute, raw map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.publishWarning(ctx, route.Name, telemetry.ErrInvalidCommandShape, fmt.Sprintf("panic dispatching command: %v", rec))
		}
	}()

	reply := route.Machine.Submit(ctx, raw)
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

func (r *Router) publishWarning(ctx context.Context, zoneName string, kind telemetry.ErrorKind, raw string) {
	if r.sink == nil {
		return
	}
	event := telemetry.NewOutcomeEvent(time.Now(), zoneName, "", telemetry.OutcomeWarning)
	event.WarningType = kind
	event.Message = raw
	_ = r.sink.Outcome(ctx, event)
}

func commandName(raw map[string]any) (string, bool) {
	for _, key := range []string{"command", "Command"} {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// NotifyDuckStart implements zone.DuckNotifier: it adds the equivalent
// trigger to every sibling audio zone so their background streams duck in
// lockstep with the origin zone.
func (r *Router) NotifyDuckStart(originZone, triggerID string, kind duck.Kind) {
	for name, route := range r.routes {
		if name == originZone || !route.Audio {
			continue
		}
		route.Machine.AddForeignDuckTrigger(triggerID, kind)
	}
}

// NotifyDuckEnd implements zone.DuckNotifier.
func (r *Router) NotifyDuckEnd(originZone, triggerID string) {
	for name, route := range r.routes {
		if name == originZone || !route.Audio {
			continue
		}
		route.Machine.RemoveForeignDuckTrigger(triggerID)
	}
}
