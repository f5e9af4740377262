package channel

import (
	"context"
	"sync"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/player"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/volume"
)

// HandleFactory spawns a fresh PlayerHandle for a single fire-and-forget
// effect. Effects have no queue and unlimited concurrency, so each call
// gets its own handle rather than sharing one with Background/Speech.
type HandleFactory func(ctx context.Context) (player.Handle, error)

// Effects is the fire-and-forget effects channel: every call spawns an
// independent playback with no EOF observation and no duck trigger. The
// only failure mode tracked is spawn failure; once a handle is obtained,
// the effect plays fire-and-forget and its handle is closed once playback
// is issued.
type Effects struct {
	zone  string
	cfg   config.ZoneConfig
	spawn HandleFactory
	ducks *duck.Lifecycle
	sink  telemetry.Sink

	mu       sync.Mutex
	inflight int
}

// NewEffects constructs an Effects channel for zone. ducks is accepted
// only to document the invariant that effects never touch it.
func NewEffects(zone string, cfg config.ZoneConfig, spawn HandleFactory, ducks *duck.Lifecycle, sink telemetry.Sink) *Effects {
	return &Effects{zone: zone, cfg: cfg, spawn: spawn, ducks: ducks, sink: sink}
}

// Play spawns an independent playback of file. It returns once the spawn
// itself has been confirmed and playback issued; it does not wait for the
// effect to finish.
func (e *Effects) Play(ctx context.Context, file string, req volume.Request) Outcome {
	if !fileExists(file) {
		e.emit(ctx, telemetry.OutcomeWarning, file, telemetry.ErrFileNotFound)
		return Outcome{Status: telemetry.OutcomeWarning, WarningType: telemetry.ErrFileNotFound}
	}

	req.Type = volume.Effects
	resolved, err := volume.Resolve(req, zoneModel(e.cfg), false)
	if err != nil {
		e.emit(ctx, telemetry.OutcomeFailure, file, telemetry.ErrInvalidZoneModel)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrInvalidZoneModel}
	}

	handle, err := e.spawn(ctx)
	if err != nil {
		e.emit(ctx, telemetry.OutcomeFailure, file, telemetry.ErrPlayerSpawnFailed)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerSpawnFailed, Message: err.Error()}
	}

	e.mu.Lock()
	e.inflight++
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			e.inflight--
			e.mu.Unlock()
			_ = handle.Close()
		}()
		dctx, cancel := playerDeadline(context.Background())
		defer cancel()
		if err := handle.Load(dctx, file, true); err != nil {
			return
		}
		if err := handle.SetVolume(dctx, resolved.Final); err != nil {
			return
		}
		_ = handle.Play(dctx)
	}()

	status := telemetry.OutcomeSuccess
	var warningType telemetry.ErrorKind
	if len(resolved.Warnings) > 0 {
		status = telemetry.OutcomeWarning
		warningType = telemetry.ErrVolumeResolutionWarn
	}

	if e.sink != nil {
		event := telemetry.NewOutcomeEvent(now(), e.zone, "playSoundEffect", status)
		event.Parameters = telemetry.Parameters{
			File:            file,
			EffectiveVolume: intPtr(resolved.Final),
			Warnings:        warningStrings(resolved.Warnings),
		}
		event.WarningType = warningType
		_ = e.sink.Outcome(ctx, event)
	}

	return Outcome{Status: status, Warnings: resolved.Warnings, WarningType: warningType}
}

// Inflight reports the number of effects currently playing, for tests
// asserting on concurrent overlap.
func (e *Effects) Inflight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight
}

func (e *Effects) emit(ctx context.Context, status telemetry.Outcome, file string, warningType telemetry.ErrorKind) {
	if e.sink == nil {
		return
	}
	event := telemetry.NewOutcomeEvent(now(), e.zone, "playSoundEffect", status)
	event.Parameters = telemetry.Parameters{File: file}
	event.WarningType = warningType
	_ = e.sink.Outcome(ctx, event)
}
