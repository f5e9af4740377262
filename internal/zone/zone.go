// Package zone implements the per-zone state machine: command validation
// and dispatch to the background/speech/effects/video channels, ZoneState
// bookkeeping, and the 30s command execution timeout umbrella. Each
// Machine's inbox-draining goroutine is itself a suture.Service, so a
// zone is a single-threaded cooperative actor supervised like any other
// service.
package zone

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/channel"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/metrics"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
)

const commandTimeout = 30 * time.Second

// now is overridable in tests so telemetry timestamps are deterministic.
var now = time.Now

// Status is a zone's aggregate playback state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusPlayingVideo Status = "playing_video"
	StatusPlayingImage Status = "playing_image"
	StatusPlayingAudio Status = "playing_audio"
	StatusError        Status = "error"
)

// State is a read-only snapshot of a zone's current status, safe to copy
// and read concurrently.
type State struct {
	Name             string
	Kind             config.ZoneKind
	Status           Status
	BackgroundFile   string
	BackgroundVolume int
	SpeechPlaying    string
	SpeechQueueDepth int
	VideoFile        string
	VideoQueueDepth  int
	LastCommand      string
	LastEvent        string
}

// DuckNotifier fans cross-zone duck triggers out to sibling audio zones
// when this zone starts or ends a speech/video duck, so their background
// streams duck in lockstep. The Router implements this.
type DuckNotifier interface {
	NotifyDuckStart(originZone, triggerID string, kind duck.Kind)
	NotifyDuckEnd(originZone, triggerID string)
}

type noopNotifier struct{}

func (noopNotifier) NotifyDuckStart(string, string, duck.Kind) {}
func (noopNotifier) NotifyDuckEnd(string, string)              {}

type inboxItem struct {
	ctx   context.Context
	raw   map[string]any
	reply chan channel.Outcome
}

// Machine is a single zone's command-routing state machine.
type Machine struct {
	name  string
	cfg   config.ZoneConfig
	sink  telemetry.Sink
	ducks *duck.Lifecycle

	background *channel.Background
	speech     *channel.Speech
	effects    *channel.Effects
	video      *channel.Video // nil for audio zones

	notifier DuckNotifier

	inbox chan inboxItem

	mu    sync.RWMutex
	state State

	// lastTriggers and foreign track duck-trigger membership across
	// command dispatches so native additions/removals (but not ones
	// received from a sibling zone via AddForeignDuckTrigger) are
	// reported to notifier for cross-zone duck fan-out.
	lastTriggers map[string]duck.Kind
	foreign      map[string]bool

	// lastPublished is the most recently published status, so snapshots
	// go out on-change rather than on every refresh.
	lastPublished Status
	published     bool
}

// Channels bundles the per-zone channel actors a Machine dispatches to.
// Video is nil for audio-kind zones.
type Channels struct {
	Background *channel.Background
	Speech     *channel.Speech
	Effects    *channel.Effects
	Video      *channel.Video
}

// New constructs a Machine for zone name with cfg and the given channel
// set. notifier may be nil, in which case cross-zone duck fan-out is a
// no-op (used for single-zone tests).
func New(name string, cfg config.ZoneConfig, chans Channels, ducks *duck.Lifecycle, sink telemetry.Sink, notifier DuckNotifier) *Machine {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	// Native duck edges (own speech/video triggers) recompute the
	// background volume immediately rather than waiting for the next
	// reconcile tick.
	recompute := func() {
		if chans.Background != nil {
			chans.Background.Recompute(context.Background())
		}
	}
	if chans.Speech != nil {
		chans.Speech.SetDuckEdgeHook(recompute)
	}
	if chans.Video != nil {
		chans.Video.SetDuckEdgeHook(recompute)
	}
	return &Machine{
		name:         name,
		cfg:          cfg,
		sink:         sink,
		ducks:        ducks,
		background:   chans.Background,
		speech:       chans.Speech,
		effects:      chans.Effects,
		video:        chans.Video,
		notifier:     notifier,
		inbox:        make(chan inboxItem, 32),
		state:        State{Name: name, Kind: cfg.Kind, Status: StatusIdle},
		lastTriggers: make(map[string]duck.Kind),
		foreign:      make(map[string]bool),
	}
}

// AddForeignDuckTrigger adds a duck trigger originated by a sibling zone,
// without re-reporting it back to the notifier.
func (m *Machine) AddForeignDuckTrigger(id string, kind duck.Kind) {
	m.mu.Lock()
	m.foreign[id] = true
	m.mu.Unlock()
	m.ducks.Add(id, kind)
	m.background.Recompute(context.Background())
	m.syncTriggers()
}

// RemoveForeignDuckTrigger removes a duck trigger previously added via
// AddForeignDuckTrigger.
func (m *Machine) RemoveForeignDuckTrigger(id string) {
	m.ducks.Remove(id)
	m.mu.Lock()
	delete(m.foreign, id)
	m.mu.Unlock()
	m.background.Recompute(context.Background())
	m.syncTriggers()
}

// syncTriggers refreshes lastTriggers to the lifecycle's current
// membership without emitting fan-out notifications; used after
// foreign-trigger bookkeeping to avoid the next reconcileDuckFanout call
// misreporting a foreign trigger as native.
func (m *Machine) syncTriggers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTriggers = m.ducks.Triggers()
}

// reconcileDuckFanout diffs the duck lifecycle's trigger membership
// against its state as of the previous dispatch, notifying sibling zones
// of any natively-added or natively-removed trigger. Triggers added via
// AddForeignDuckTrigger are never re-reported.
func (m *Machine) reconcileDuckFanout() {
	current := m.ducks.Triggers()
	metrics.DuckTriggersActive.WithLabelValues(m.name).Set(float64(len(current)))
	if m.speech != nil {
		metrics.SpeechQueueDepth.WithLabelValues(m.name).Set(float64(m.speech.QueueDepth()))
	}

	m.mu.Lock()
	previous := m.lastTriggers
	m.lastTriggers = current
	foreign := m.foreign
	m.mu.Unlock()

	for id, kind := range current {
		if _, existed := previous[id]; !existed && !foreign[id] {
			m.notifier.NotifyDuckStart(m.name, id, kind)
		}
	}
	for id := range previous {
		if _, still := current[id]; !still && !foreign[id] {
			m.notifier.NotifyDuckEnd(m.name, id)
		}
	}
}

// Submit enqueues raw (a decoded JSON command object) for processing and
// returns a channel that receives the resulting Outcome once processed.
func (m *Machine) Submit(ctx context.Context, raw map[string]any) <-chan channel.Outcome {
	reply := make(chan channel.Outcome, 1)
	item := inboxItem{ctx: ctx, raw: raw, reply: reply}
	select {
	case m.inbox <- item:
	case <-ctx.Done():
		reply <- channel.Outcome{Status: telemetry.OutcomeFailure, Message: ctx.Err().Error()}
		close(reply)
	}
	return reply
}

// Serve drains the inbox until ctx is canceled, processing each command
// strictly sequentially. It implements suture.Service.
func (m *Machine) Serve(ctx context.Context) error {
	logger := logging.ForZone(m.name, string(m.cfg.Kind))
	logger.Info().Msg("zone started")
	defer logger.Info().Msg("zone stopped")

	// Duck triggers can also end asynchronously (natural-end timers, EOF
	// observation) between commands, so fan-out is reconciled both after
	// every dispatched command and on a short ticker.
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.reconcileDuckFanout()
			m.refreshStatus(ctx)
		case item := <-m.inbox:
			outcome := m.dispatchWithTimeout(item.ctx, item.raw)
			m.reconcileDuckFanout()
			m.refreshStatus(ctx)
			item.reply <- outcome
			close(item.reply)
		}
	}
}

func (m *Machine) String() string { return "zone:" + m.name }

// dispatchWithTimeout runs handleCommand in its own goroutine bounded by
// the documented 30s command execution umbrella. If the timeout elapses
// first, a command_timeout failure is reported and a best-effort stop is
// issued, while the original dispatch goroutine is left to finish (or
// never will, for a genuinely wedged player) in the background.
func (m *Machine) dispatchWithTimeout(ctx context.Context, raw map[string]any) channel.Outcome {
	dctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	started := time.Now()
	command, _ := commandName(raw)

	done := make(chan channel.Outcome, 1)
	go func() {
		done <- m.handleCommand(dctx, raw)
	}()

	select {
	case outcome := <-done:
		metrics.RecordCommand(m.name, command, string(outcome.Status), time.Since(started))
		return outcome
	case <-dctx.Done():
		metrics.CommandTimeouts.WithLabelValues(m.name, command).Inc()
		metrics.RecordCommand(m.name, command, string(telemetry.OutcomeFailure), time.Since(started))
		go m.stopAll(context.Background())
		return channel.Outcome{
			Status:      telemetry.OutcomeFailure,
			WarningType: telemetry.ErrCommandTimeout,
			Message:     fmt.Sprintf("command %q exceeded %s", command, commandTimeout),
		}
	}
}

func commandName(raw map[string]any) (string, bool) {
	for _, key := range []string{"command", "Command"} {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return strings.ToLower(s), true
			}
		}
	}
	return "", false
}

// Snapshot returns a copy of the zone's current state.
func (m *Machine) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// refreshStatus derives ZoneState from the channels' current playback
// state (transitions are driven by channel callbacks, not commands) and
// publishes a status snapshot when the aggregate status changed since the
// last one published.
func (m *Machine) refreshStatus(ctx context.Context) {
	bg := m.background.State()
	speechPlaying := m.speech.CurrentFile()
	speechDepth := m.speech.QueueDepth()
	audioActive := bg.Playing || speechPlaying != "" || speechDepth > 0

	var videoFile string
	var image bool
	videoDepth := 0
	if m.video != nil {
		videoFile, image = m.video.Current()
		videoDepth = m.video.QueueDepth()
	}

	status := StatusIdle
	switch {
	case videoFile != "" && !image:
		status = StatusPlayingVideo
	case image:
		status = StatusPlayingImage
	case audioActive:
		status = StatusPlayingAudio
	}

	m.mu.Lock()
	if m.state.Status != StatusError {
		m.state.Status = status
	}
	m.state.BackgroundFile = bg.File
	m.state.BackgroundVolume = bg.EffectiveVolume
	m.state.SpeechPlaying = speechPlaying
	m.state.SpeechQueueDepth = speechDepth
	m.state.VideoFile = videoFile
	m.state.VideoQueueDepth = videoDepth
	changed := !m.published || status != m.lastPublished
	m.lastPublished = status
	m.published = true
	m.mu.Unlock()

	if changed {
		m.publishStatus(ctx)
	}
}

// publishStatus emits a full status snapshot to the zone's status topic.
func (m *Machine) publishStatus(ctx context.Context) {
	if m.sink == nil {
		return
	}
	snap := m.Snapshot()
	bg := m.background.State()

	event := telemetry.NewStatusEvent(now(), m.name, string(snap.Status))
	event.Background = telemetry.BackgroundStatus{
		Playing:         bg.Playing,
		File:            bg.File,
		PreDuckVolume:   bg.PreDuckVolume,
		EffectiveVolume: bg.EffectiveVolume,
		Ducked:          bg.Ducked,
		Loop:            bg.Loop,
	}
	event.SpeechPlaying = snap.SpeechPlaying
	event.SpeechQueueDepth = snap.SpeechQueueDepth
	event.VideoFile = snap.VideoFile
	event.VideoQueueDepth = snap.VideoQueueDepth
	event.DuckTriggers = m.ducks.Snapshot().Count
	event.LastCommand = snap.LastCommand
	_ = m.sink.Status(ctx, event)
}
