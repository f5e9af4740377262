package channel

import (
	"container/list"
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/metrics"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/player"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/tracker"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/volume"
)

// SpeechItem is a single enqueued speech request.
type SpeechItem struct {
	ID             string
	File           string
	RequestedVol   volume.Request
	PerItemDuck    *int
	TargetDuration float64
}

// Speech is the zone's speech queue: duplicate suppression on enqueue,
// strictly sequential playback, pause/resume/skip, and completion
// telemetry tracked against a natural-end timer rather than only
// PlayerHandle EOF.
type Speech struct {
	mu sync.Mutex

	zone   string
	cfg    config.ZoneConfig
	handle player.Handle
	ducks  *duck.Lifecycle
	sink   telemetry.Sink

	queue   *list.List // of *SpeechItem
	current *SpeechItem
	trigger string
	trk     *tracker.Tracker
	paused  bool

	// onDuckEdge fires after every duck trigger this channel adds or
	// removes, so the owning zone can recompute its background volume on
	// the edge rather than waiting for the next reconcile tick.
	onDuckEdge func()

	stopCh chan struct{}
}

// NewSpeech constructs a Speech channel for zone.
func NewSpeech(zone string, cfg config.ZoneConfig, handle player.Handle, ducks *duck.Lifecycle, sink telemetry.Sink) *Speech {
	s := &Speech{zone: zone, cfg: cfg, handle: handle, ducks: ducks, sink: sink, queue: list.New(), stopCh: make(chan struct{})}
	go s.watchEOF()
	return s
}

// watchEOF advances the queue whenever the underlying handle reports
// end-of-file, independent of the natural-end timer.
func (s *Speech) watchEOF() {
	for {
		select {
		case <-s.stopCh:
			return
		case _, ok := <-s.handle.ObserveEOF():
			if !ok {
				return
			}
			s.advance(context.Background(), false)
		}
	}
}

// Close stops the background EOF watcher. Safe to call once per Speech.
func (s *Speech) Close() {
	close(s.stopCh)
}

// SetDuckEdgeHook registers f to run after every duck trigger edge this
// channel produces. Must be called before the channel starts playing.
func (s *Speech) SetDuckEdgeHook(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDuckEdge = f
}

func (s *Speech) notifyDuckEdge() {
	s.mu.Lock()
	f := s.onDuckEdge
	s.mu.Unlock()
	if f != nil {
		f()
	}
}

// Enqueue implements SpeechChannel.enqueue.
func (s *Speech) Enqueue(ctx context.Context, file string, req volume.Request, perItemDuck *int, targetDurationSec float64) Outcome {
	s.mu.Lock()

	if !fileExists(file) {
		s.mu.Unlock()
		s.emitOutcome(ctx, "playSpeech", telemetry.OutcomeWarning, file, telemetry.ErrFileNotFound)
		return Outcome{Status: telemetry.OutcomeWarning, WarningType: telemetry.ErrFileNotFound}
	}

	if s.isDuplicate(file) {
		s.mu.Unlock()
		metrics.SpeechDuplicatesIgnored.WithLabelValues(s.zone).Inc()
		s.emitOutcome(ctx, "playSpeech", telemetry.OutcomeWarning, file, telemetry.ErrDuplicateIgnored)
		return Outcome{Status: telemetry.OutcomeWarning, WarningType: telemetry.ErrDuplicateIgnored}
	}

	overflow := false
	limit := s.cfg.QueueLimits.Audio
	if limit > 0 && s.queue.Len() >= limit {
		s.queue.Remove(s.queue.Front())
		overflow = true
	}

	item := &SpeechItem{ID: uuid.NewString(), File: file, RequestedVol: req, PerItemDuck: perItemDuck, TargetDuration: targetDurationSec}
	s.queue.PushBack(item)
	startNow := s.current == nil
	s.mu.Unlock()

	if overflow {
		metrics.QueueOverflowDropped.WithLabelValues(s.zone, "speech").Inc()
		s.emitOutcome(ctx, "playSpeech", telemetry.OutcomeWarning, file, telemetry.ErrQueueOverflowDropped)
	} else {
		s.emitOutcome(ctx, "playSpeech", telemetry.OutcomeSuccess, file, "")
	}

	if startNow {
		s.startNext(ctx)
	}

	if overflow {
		return Outcome{Status: telemetry.OutcomeWarning, WarningType: telemetry.ErrQueueOverflowDropped}
	}
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// isDuplicate checks file against the currently playing item and the last
// queued item. Caller holds s.mu.
func (s *Speech) isDuplicate(file string) bool {
	if s.current != nil && s.current.File == file {
		return true
	}
	if back := s.queue.Back(); back != nil {
		if item := back.Value.(*SpeechItem); item.File == file {
			return true
		}
	}
	return false
}

// startNext pops the head of the queue and begins playback.
func (s *Speech) startNext(ctx context.Context) {
	s.mu.Lock()
	front := s.queue.Front()
	if front == nil {
		s.current = nil
		s.mu.Unlock()
		return
	}
	item := s.queue.Remove(front).(*SpeechItem)
	s.current = item
	s.mu.Unlock()

	req := item.RequestedVol
	req.Type = volume.Speech
	resolved, err := volume.Resolve(req, zoneModel(s.cfg), s.ducks.Active())
	if err != nil {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		s.emitOutcome(ctx, "playSpeech", telemetry.OutcomeFailure, item.File, telemetry.ErrInvalidZoneModel)
		s.startNext(ctx)
		return
	}

	// A per-item duck of exactly 0 means no trigger at all; any other
	// value rides along on the trigger and overrides the zone's adjust
	// for as long as this item plays. Absent, the zone defaults apply.
	addTrigger := true
	var perItemAdjust *int
	if item.PerItemDuck != nil {
		v := *item.PerItemDuck
		if v > 0 {
			logger := logging.ForComponent("speech")
			logger.Warn().Str("zone", s.zone).Int("ducking", v).Msg("positive per-item ducking forced to 0")
			v = 0
		}
		if v < -100 {
			v = -100
		}
		if v == 0 {
			addTrigger = false
		} else {
			perItemAdjust = &v
		}
	}

	dctx, cancel := playerDeadline(ctx)
	loadErr := s.handle.Load(dctx, item.File, false)
	if loadErr == nil {
		loadErr = s.handle.SetVolume(dctx, resolved.Final)
	}
	if loadErr == nil {
		loadErr = s.handle.Play(dctx)
	}
	cancel()
	if loadErr != nil {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		s.emitOutcome(ctx, "playSpeech", telemetry.OutcomeFailure, item.File, telemetry.ErrPlayerLoadFailed)
		s.startNext(ctx)
		return
	}

	triggerID := "speech-" + item.ID
	if addTrigger {
		s.ducks.AddAdjusted(triggerID, duck.KindSpeech, perItemAdjust)
		s.notifyDuckEdge()
	} else {
		triggerID = ""
	}
	s.mu.Lock()
	s.trigger = triggerID
	s.trk = tracker.New(item.TargetDuration, func() { s.advance(ctx, true) }, 0)
	s.trk.Start()
	s.mu.Unlock()

	event := telemetry.NewOutcomeEvent(now(), s.zone, "speech_started", telemetry.OutcomeSuccess)
	event.Parameters = telemetry.Parameters{
		File:            item.File,
		EffectiveVolume: intPtr(resolved.Final),
		PreDuckVolume:   intPtr(resolved.PreDuck),
		Ducked:          boolPtr(resolved.Ducked),
	}
	if s.sink != nil {
		_ = s.sink.Outcome(ctx, event)
	}
}

// advance is called on natural end (fromTracker=true) or EOF
// (fromTracker=false) to complete the current item and start the next.
func (s *Speech) advance(ctx context.Context, fromTracker bool) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	finished := s.current
	trigger := s.trigger
	trk := s.trk
	s.current = nil
	s.trigger = ""
	s.trk = nil
	s.mu.Unlock()

	if !fromTracker && trk != nil {
		trk.Stop()
	}
	if trigger != "" {
		s.ducks.Remove(trigger)
		s.notifyDuckEdge()
	}

	event := telemetry.NewOutcomeEvent(now(), s.zone, "speech_completed", telemetry.OutcomeSuccess)
	event.Parameters = telemetry.Parameters{File: finished.File}
	if s.sink != nil {
		_ = s.sink.Outcome(ctx, event)
	}

	s.startNext(ctx)
}

// Skip ends the currently playing item immediately and advances.
func (s *Speech) Skip(ctx context.Context) Outcome {
	dctx, cancel := playerDeadline(ctx)
	defer cancel()
	_ = s.handle.Stop(dctx)
	s.advance(ctx, false)
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// Pause forwards to PlayerHandle and freezes the natural-end timer.
func (s *Speech) Pause(ctx context.Context) Outcome {
	s.mu.Lock()
	trk := s.trk
	s.paused = true
	s.mu.Unlock()

	dctx, cancel := playerDeadline(ctx)
	defer cancel()
	if err := s.handle.Pause(dctx); err != nil {
		return Outcome{Status: telemetry.OutcomeFailure, Message: err.Error()}
	}
	if trk != nil {
		trk.Pause()
	}
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// Resume forwards to PlayerHandle and resumes the natural-end timer.
func (s *Speech) Resume(ctx context.Context) Outcome {
	s.mu.Lock()
	trk := s.trk
	s.paused = false
	s.mu.Unlock()

	dctx, cancel := playerDeadline(ctx)
	defer cancel()
	if err := s.handle.Resume(dctx); err != nil {
		return Outcome{Status: telemetry.OutcomeFailure, Message: err.Error()}
	}
	if trk != nil {
		trk.Resume()
	}
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// Clear empties the queue, stops the current item, and removes its duck
// trigger.
func (s *Speech) Clear(ctx context.Context) Outcome {
	s.mu.Lock()
	trigger := s.trigger
	trk := s.trk
	hasCurrent := s.current != nil
	s.queue.Init()
	s.current = nil
	s.trigger = ""
	s.trk = nil
	s.mu.Unlock()

	if trk != nil {
		trk.Stop()
	}
	if trigger != "" {
		s.ducks.Remove(trigger)
		s.notifyDuckEdge()
	}
	if hasCurrent {
		dctx, cancel := playerDeadline(ctx)
		_ = s.handle.Stop(dctx)
		cancel()
	}

	event := telemetry.NewOutcomeEvent(now(), s.zone, "speech_queue_cleared", telemetry.OutcomeSuccess)
	if s.sink != nil {
		_ = s.sink.Outcome(ctx, event)
	}
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// QueueDepth reports the number of items waiting behind the currently
// playing one.
func (s *Speech) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Active reports whether an item is currently playing.
func (s *Speech) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// CurrentFile reports the file of the currently playing item, or "".
func (s *Speech) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.File
}

func (s *Speech) emitOutcome(ctx context.Context, command string, status telemetry.Outcome, file string, warningType telemetry.ErrorKind) {
	if s.sink == nil {
		return
	}
	event := telemetry.NewOutcomeEvent(now(), s.zone, command, status)
	event.Parameters = telemetry.Parameters{File: file}
	event.WarningType = warningType
	_ = s.sink.Outcome(ctx, event)
}
