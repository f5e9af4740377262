package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/channel"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/devices"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/player"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/router"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/sink"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/supervisor"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/transport"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/zone"
)

// dialTimeout bounds every per-zone PlayerHandle socket connection attempt
// made during startup.
const dialTimeout = 5 * time.Second

// app bundles every long-lived runtime object the supervisor tree drives,
// plus the handles closing it on shutdown requires.
type app struct {
	tree     *supervisor.SupervisorTree
	t        transport.Transport
	embedded *transport.EmbeddedServer
	handles  []player.Handle
	closers  []func()
	devices  *devices.NoopDriver
}

// routerRef is a DuckNotifier whose target is filled in after the router
// is constructed. zone.Machine captures its notifier at construction time,
// but the router in turn needs every zone.Machine already built to
// populate its ZoneRoute table. routerRef breaks that cycle: each zone
// holds one of these, starting as a no-op, and newApp points every
// instance at the real router once it exists.
type routerRef struct {
	target *router.Router
}

func (r *routerRef) NotifyDuckStart(originZone, triggerID string, kind duck.Kind) {
	if r.target != nil {
		r.target.NotifyDuckStart(originZone, triggerID, kind)
	}
}

func (r *routerRef) NotifyDuckEnd(originZone, triggerID string) {
	if r.target != nil {
		r.target.NotifyDuckEnd(originZone, triggerID)
	}
}

// newApp constructs every zone's channels and state machine, the shared
// transport and telemetry sink, and the router and supervisor tree that
// drive them: transport -> Router -> zone.Machine -> channel ->
// PlayerHandle.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logging.ForComponent("startup")

	var embedded *transport.EmbeddedServer
	transportURL := cfg.Global.TransportURL
	if cfg.Global.EmbeddedNATS {
		var err error
		embedded, err = transport.StartEmbedded(transport.EmbeddedConfig{
			Host: cfg.Global.EmbeddedNATSHost,
			Port: cfg.Global.EmbeddedNATSPort,
		})
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		transportURL = embedded.ClientURL()
	}

	t, err := transport.Dial(transport.Config{URL: transportURL})
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("dial transport: %w", err)
	}

	eventTopics := make(map[string]string, len(cfg.Zones))
	statusTopics := make(map[string]string, len(cfg.Zones))
	for name, zc := range cfg.Zones {
		eventTopics[name] = eventsTopic(zc)
		statusTopics[name] = zc.BaseTopic + "/status"
	}
	telemetrySink := telemetry.NewPublisher(t,
		func(zoneName string) string {
			if topic, ok := eventTopics[zoneName]; ok {
				return topic
			}
			return zoneName + "/events"
		},
		func(zoneName string) string {
			if topic, ok := statusTopics[zoneName]; ok {
				return topic
			}
			return zoneName + "/status"
		})

	tree := supervisor.NewSupervisorTree(logging.SlogLogger(), supervisor.DefaultTreeConfig())
	a := &app{tree: tree, t: t, embedded: embedded, devices: devices.NewNoopDriver(logger)}

	var (
		routes []router.ZoneRoute
		refs   []*routerRef
	)
	for name, zc := range cfg.Zones {
		route, ref, err := a.buildZone(ctx, name, zc, telemetrySink, logger)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", name, err)
		}
		routes = append(routes, route)
		refs = append(refs, ref)

		if zc.Kind == config.ZoneKindAudio {
			tree.AddAudioZone(route.Machine)
		} else {
			tree.AddScreenZone(route.Machine)
		}
	}

	rtr := router.New(t, telemetrySink, routes)
	for _, ref := range refs {
		ref.target = rtr
	}
	tree.AddRouter(rtr)

	zoneNames := make([]string, 0, len(cfg.Zones))
	for name := range cfg.Zones {
		zoneNames = append(zoneNames, name)
	}
	hb := telemetry.NewHeartbeat(t, cfg.Global.HeartbeatTopic, cfg.Global.HeartbeatInterval, zoneNames)
	tree.Root().Add(hb)

	return a, nil
}

// eventsTopic derives a zone's events topic from its declared status topic
// (if any) or its base topic.
func eventsTopic(zc config.ZoneConfig) string {
	if zc.StatusTopic != "" {
		return zc.StatusTopic
	}
	return zc.BaseTopic + "/events"
}

// socketAddr extracts the {network, address} pair a zone's PlayerOptions
// declares for a given channel key (e.g. "background", "speech", "video",
// "effects"), falling back to a per-zone/per-channel unix socket path so a
// zone needs no playerOptions at all to boot against a default-configured
// player process.
func socketAddr(zc config.ZoneConfig, key string) (network, address string) {
	network, address = "unix", fmt.Sprintf("/tmp/pfx-%s-%s.sock", zc.Name, key)
	opts, _ := zc.PlayerOptions[key].(map[string]any)
	if opts == nil {
		return network, address
	}
	if n, ok := opts["network"].(string); ok && n != "" {
		network = n
	}
	if addr, ok := opts["address"].(string); ok && addr != "" {
		address = addr
	}
	return network, address
}

// buildZone dials the PlayerHandle sockets a zone's channels need, wires
// them into a Channels set, and constructs the zone's ZoneStateMachine and
// router route.
func (a *app) buildZone(ctx context.Context, name string, zc config.ZoneConfig, sink_ telemetry.Sink, logger zerolog.Logger) (router.ZoneRoute, *routerRef, error) {
	zc.Name = name
	ducks := duck.New()

	var combinedDevice string
	if zc.CombinedSink != nil {
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		device, err := sink.Global().Ensure(dctx, sink.Declaration{
			Name:        zc.CombinedSink.Name,
			Description: zc.CombinedSink.Description,
			Slaves:      zc.CombinedSink.Slaves,
		})
		cancel()
		if err != nil {
			return router.ZoneRoute{}, nil, fmt.Errorf("ensure combined sink: %w", err)
		}
		combinedDevice = device
		logger.Info().Str("zone", name).Str("device", device).Msg("combined sink ready")
	}

	dial := func(key string) (*player.IPCPlayer, error) {
		network, addr := socketAddr(zc, key)
		if combinedDevice != "" {
			addr = combinedDevice
		}
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return player.Dial(dctx, network, addr, name)
	}

	bgHandle, err := dial("background")
	if err != nil {
		return router.ZoneRoute{}, nil, fmt.Errorf("dial background player: %w", err)
	}
	a.handles = append(a.handles, bgHandle)

	speechHandle, err := dial("speech")
	if err != nil {
		return router.ZoneRoute{}, nil, fmt.Errorf("dial speech player: %w", err)
	}
	a.handles = append(a.handles, speechHandle)

	effectsFactory := func(fctx context.Context) (player.Handle, error) {
		network, addr := socketAddr(zc, "effects")
		if combinedDevice != "" {
			addr = combinedDevice
		}
		dctx, cancel := context.WithTimeout(fctx, dialTimeout)
		defer cancel()
		h, err := player.Dial(dctx, network, addr, name)
		if err != nil {
			return nil, err
		}
		return h, nil
	}

	background := channel.NewBackground(name, zc, bgHandle, ducks, sink_)
	speech := channel.NewSpeech(name, zc, speechHandle, ducks, sink_)
	effects := channel.NewEffects(name, zc, effectsFactory, ducks, sink_)
	a.closers = append(a.closers, speech.Close)

	chans := zone.Channels{Background: background, Speech: speech, Effects: effects}

	if zc.Kind == config.ZoneKindScreen {
		videoHandle, err := dial("video")
		if err != nil {
			return router.ZoneRoute{}, nil, fmt.Errorf("dial video player: %w", err)
		}
		a.handles = append(a.handles, videoHandle)
		video := channel.NewVideo(name, zc, videoHandle, ducks, sink_)
		a.closers = append(a.closers, video.Close)
		chans.Video = video
	}

	ref := &routerRef{}
	machine := zone.New(name, zc, chans, ducks, sink_, ref)

	return router.ZoneRoute{
		Name:         name,
		CommandTopic: zc.BaseTopic + "/commands",
		Machine:      machine,
		Audio:        zc.Kind == config.ZoneKindAudio,
	}, ref, nil
}

// close releases every PlayerHandle and process-global combined sink this
// app created. Called once on shutdown regardless of how the run loop
// exited.
func (a *app) close(ctx context.Context) {
	for _, c := range a.closers {
		c()
	}
	for _, h := range a.handles {
		_ = h.Close()
	}
	sink.Global().ReleaseAll(ctx)
	_ = a.t.Close()
	if a.embedded != nil {
		_ = a.embedded.Shutdown(ctx)
	}
}
