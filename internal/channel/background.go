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

// PlayOptions are the per-call options play accepts beyond file and
// VolumeRequest.
type PlayOptions struct {
	Loop bool
}

// Background is a zone's single persistent audio stream. Repeated plays
// replace the currently loaded file; it is recomputed on every duck
// lifecycle edge so ducking/unducking is reflected without a fresh play
// call.
type Background struct {
	mu sync.Mutex

	zone   string
	cfg    config.ZoneConfig
	handle player.Handle
	ducks  *duck.Lifecycle
	sink   telemetry.Sink

	playing       bool
	currentFile   string
	preDuckVolume int
	lastApplied   int
	ducked        bool
	loop          bool
}

// BackgroundState is the snapshot reported in zone status events.
type BackgroundState struct {
	Playing         bool
	File            string
	PreDuckVolume   int
	EffectiveVolume int
	Ducked          bool
	Loop            bool
}

// NewBackground constructs a Background channel for zone, wired to handle
// for PlayerHandle operations, ducks for the zone's shared duck lifecycle,
// and sink for telemetry.
func NewBackground(zone string, cfg config.ZoneConfig, handle player.Handle, ducks *duck.Lifecycle, sink telemetry.Sink) *Background {
	return &Background{zone: zone, cfg: cfg, handle: handle, ducks: ducks, sink: sink}
}

// Play loads and starts file, replacing any currently playing stream.
func (b *Background) Play(ctx context.Context, file string, req volume.Request, opts PlayOptions) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !fileExists(file) {
		b.emitOutcome(ctx, "playBackground", telemetry.OutcomeWarning, file, nil, telemetry.ErrFileNotFound, nil, 0, 0, false)
		return Outcome{Status: telemetry.OutcomeWarning, WarningType: telemetry.ErrFileNotFound}
	}

	req.Type = volume.Background
	model := zoneModel(b.cfg)
	model.DuckingAdjust = effectiveDuckAdjust(b.cfg, b.ducks.Entries())
	resolved, err := volume.Resolve(req, model, b.ducks.Active())
	if err != nil {
		b.emitOutcome(ctx, "playBackground", telemetry.OutcomeFailure, file, nil, telemetry.ErrInvalidZoneModel, nil, 0, 0, false)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrInvalidZoneModel}
	}

	dctx, cancel := playerDeadline(ctx)
	defer cancel()

	if err := b.handle.Load(dctx, file, true); err != nil {
		b.emitOutcome(ctx, "playBackground", telemetry.OutcomeFailure, file, nil, telemetry.ErrPlayerLoadFailed, nil, resolved.Final, resolved.PreDuck, resolved.Ducked)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerLoadFailed, Message: err.Error()}
	}
	if err := b.handle.SetLoop(dctx, opts.Loop); err != nil {
		b.emitOutcome(ctx, "playBackground", telemetry.OutcomeFailure, file, nil, telemetry.ErrPlayerLoadFailed, nil, resolved.Final, resolved.PreDuck, resolved.Ducked)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerLoadFailed, Message: err.Error()}
	}
	if err := b.handle.SetVolume(dctx, resolved.Final); err != nil {
		b.emitOutcome(ctx, "playBackground", telemetry.OutcomeFailure, file, nil, telemetry.ErrPlayerLoadFailed, nil, resolved.Final, resolved.PreDuck, resolved.Ducked)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerLoadFailed, Message: err.Error()}
	}
	if err := b.handle.Play(dctx); err != nil {
		b.emitOutcome(ctx, "playBackground", telemetry.OutcomeFailure, file, nil, telemetry.ErrPlayerLoadFailed, nil, resolved.Final, resolved.PreDuck, resolved.Ducked)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerLoadFailed, Message: err.Error()}
	}

	b.playing = true
	b.currentFile = file
	b.preDuckVolume = resolved.PreDuck
	b.lastApplied = resolved.Final
	b.ducked = resolved.Ducked
	b.loop = opts.Loop

	status := telemetry.OutcomeSuccess
	var warningType telemetry.ErrorKind
	if len(resolved.Warnings) > 0 {
		status = telemetry.OutcomeWarning
		warningType = telemetry.ErrVolumeResolutionWarn
	}
	b.emitOutcome(ctx, "playBackground", status, file, warningStrings(resolved.Warnings), warningType, req.AbsoluteVolume, resolved.Final, resolved.PreDuck, resolved.Ducked)

	return Outcome{Status: status, Warnings: resolved.Warnings, WarningType: warningType}
}

// Stop halts the background stream.
func (b *Background) Stop(ctx context.Context) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	dctx, cancel := playerDeadline(ctx)
	defer cancel()

	if err := b.handle.Stop(dctx); err != nil {
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerLoadFailed, Message: err.Error()}
	}
	b.playing = false
	b.currentFile = ""
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// Recompute re-evaluates the effective volume given the current duck
// state. It is called on every duck lifecycle edge, not just on play.
func (b *Background) Recompute(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.playing {
		return
	}

	preDuck := b.preDuckVolume
	req := volume.Request{Type: volume.Background, AbsoluteVolume: &preDuck}
	model := zoneModel(b.cfg)
	model.DuckingAdjust = effectiveDuckAdjust(b.cfg, b.ducks.Entries())
	resolved, err := volume.Resolve(req, model, b.ducks.Active())
	if err != nil {
		return
	}

	if resolved.Final == b.lastApplied {
		b.ducked = resolved.Ducked
		return
	}

	dctx, cancel := playerDeadline(ctx)
	defer cancel()
	if err := b.handle.SetVolume(dctx, resolved.Final); err != nil {
		return
	}
	b.lastApplied = resolved.Final
	b.ducked = resolved.Ducked

	if b.sink != nil {
		_ = b.sink.Recompute(ctx, telemetry.NewRecomputeEvent(now(), b.zone, resolved.Final, resolved.PreDuck, resolved.Ducked))
	}
}

// SetPreDuckVolume implements the setVolume command's effect on an
// already-playing background stream: it updates the cached pre-duck
// volume and immediately recomputes the effective volume against the
// current duck state, so the change lands while ducked instead of only
// taking effect once the duck ends.
func (b *Background) SetPreDuckVolume(ctx context.Context, preDuckVolume int) {
	b.mu.Lock()
	if !b.playing {
		b.mu.Unlock()
		return
	}
	b.preDuckVolume = preDuckVolume
	b.mu.Unlock()

	b.Recompute(ctx)
}

// CurrentFile reports the currently loaded file, or "" if none.
func (b *Background) CurrentFile() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentFile
}

// State returns a snapshot of the channel's current playback state.
func (b *Background) State() BackgroundState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BackgroundState{
		Playing:         b.playing,
		File:            b.currentFile,
		PreDuckVolume:   b.preDuckVolume,
		EffectiveVolume: b.lastApplied,
		Ducked:          b.ducked,
		Loop:            b.loop,
	}
}

func (b *Background) emitOutcome(ctx context.Context, command string, status telemetry.Outcome, file string, warnings []string, warningType telemetry.ErrorKind, requestedVolume *int, effective, preDuck int, ducked bool) {
	if b.sink == nil {
		return
	}
	event := telemetry.NewOutcomeEvent(now(), b.zone, command, status)
	event.Parameters = telemetry.Parameters{
		File:            file,
		Volume:          requestedVolume,
		EffectiveVolume: intPtr(effective),
		PreDuckVolume:   intPtr(preDuck),
		Ducked:          boolPtr(ducked),
		Warnings:        warnings,
	}
	event.WarningType = warningType
	_ = b.sink.Outcome(ctx, event)
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
