package channel

import (
	"container/list"
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/metrics"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/player"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/tracker"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/volume"
)

// VideoItem is a single enqueued video request.
type VideoItem struct {
	ID             string
	File           string
	RequestedVol   volume.Request
	TargetDuration float64
}

// Video is the screen-zone playback channel: a bounded FIFO of videos
// played sequentially, each holding a video DuckTrigger for its playback,
// plus direct (non-queued, non-ducking) still-image display. On queue
// overflow the oldest waiting item is dropped, matching the speech queue.
// Completion is driven by the PlaybackTracker's natural-end timer or
// PlayerHandle EOF, whichever fires first.
type Video struct {
	mu sync.Mutex

	zone   string
	cfg    config.ZoneConfig
	handle player.Handle
	ducks  *duck.Lifecycle
	sink   telemetry.Sink

	queue   *list.List // of *VideoItem
	current *VideoItem
	image   string
	trigger string
	trk     *tracker.Tracker

	// onDuckEdge fires after every duck trigger this channel adds or
	// removes, mirroring the speech channel's hook.
	onDuckEdge func()

	stopCh chan struct{}
}

// NewVideo constructs a Video channel for zone.
func NewVideo(zone string, cfg config.ZoneConfig, handle player.Handle, ducks *duck.Lifecycle, sink telemetry.Sink) *Video {
	v := &Video{zone: zone, cfg: cfg, handle: handle, ducks: ducks, sink: sink, queue: list.New(), stopCh: make(chan struct{})}
	go v.watchEOF()
	return v
}

func (v *Video) watchEOF() {
	for {
		select {
		case <-v.stopCh:
			return
		case _, ok := <-v.handle.ObserveEOF():
			if !ok {
				return
			}
			v.advance(context.Background(), false)
		}
	}
}

// Close stops the background EOF watcher.
func (v *Video) Close() { close(v.stopCh) }

// SetDuckEdgeHook registers f to run after every duck trigger edge this
// channel produces. Must be called before the channel starts playing.
func (v *Video) SetDuckEdgeHook(f func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onDuckEdge = f
}

func (v *Video) notifyDuckEdge() {
	v.mu.Lock()
	f := v.onDuckEdge
	v.mu.Unlock()
	if f != nil {
		f()
	}
}

// PlayVideo enqueues file behind any currently playing video, evicting the
// oldest waiting item when the queue is at its configured limit. Playback
// is strictly sequential; each item holds a video DuckTrigger from start
// to natural end.
func (v *Video) PlayVideo(ctx context.Context, file string, req volume.Request, targetDurationSec float64) Outcome {
	v.mu.Lock()

	if !fileExists(file) {
		v.mu.Unlock()
		v.emit(ctx, "playVideo", telemetry.OutcomeWarning, file, telemetry.ErrFileNotFound)
		return Outcome{Status: telemetry.OutcomeWarning, WarningType: telemetry.ErrFileNotFound}
	}

	overflow := false
	limit := v.cfg.QueueLimits.Video
	if limit > 0 && v.queue.Len() >= limit {
		v.queue.Remove(v.queue.Front())
		overflow = true
	}

	item := &VideoItem{ID: uuid.NewString(), File: file, RequestedVol: req, TargetDuration: targetDurationSec}
	v.queue.PushBack(item)
	startNow := v.current == nil
	v.mu.Unlock()

	if overflow {
		metrics.QueueOverflowDropped.WithLabelValues(v.zone, "video").Inc()
		v.emit(ctx, "playVideo", telemetry.OutcomeWarning, file, telemetry.ErrQueueOverflowDropped)
	} else {
		v.emit(ctx, "playVideo", telemetry.OutcomeSuccess, file, "")
	}

	if startNow {
		v.startNext(ctx)
	}

	if overflow {
		return Outcome{Status: telemetry.OutcomeWarning, WarningType: telemetry.ErrQueueOverflowDropped}
	}
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// startNext pops the head of the queue and begins playback.
func (v *Video) startNext(ctx context.Context) {
	v.mu.Lock()
	front := v.queue.Front()
	if front == nil {
		v.current = nil
		v.mu.Unlock()
		return
	}
	item := v.queue.Remove(front).(*VideoItem)
	v.current = item
	v.image = ""
	v.mu.Unlock()

	req := item.RequestedVol
	req.Type = volume.Video
	resolved, err := volume.Resolve(req, zoneModel(v.cfg), false)
	if err != nil {
		v.mu.Lock()
		v.current = nil
		v.mu.Unlock()
		v.emit(ctx, "playVideo", telemetry.OutcomeFailure, item.File, telemetry.ErrInvalidZoneModel)
		v.startNext(ctx)
		return
	}

	dctx, cancel := playerDeadline(ctx)
	loadErr := v.handle.Load(dctx, item.File, true)
	if loadErr == nil {
		loadErr = v.handle.SetVolume(dctx, resolved.Final)
	}
	if loadErr == nil {
		loadErr = v.handle.Play(dctx)
	}
	cancel()
	if loadErr != nil {
		v.mu.Lock()
		v.current = nil
		v.mu.Unlock()
		v.emit(ctx, "playVideo", telemetry.OutcomeFailure, item.File, telemetry.ErrPlayerLoadFailed)
		v.startNext(ctx)
		return
	}

	triggerID := "video-" + item.ID
	v.ducks.AddAdjusted(triggerID, duck.KindVideo, nil)
	v.notifyDuckEdge()
	v.mu.Lock()
	v.trigger = triggerID
	v.trk = tracker.New(item.TargetDuration, func() { v.advance(ctx, true) }, 0)
	v.trk.Start()
	v.mu.Unlock()

	event := telemetry.NewOutcomeEvent(now(), v.zone, "video_started", telemetry.OutcomeSuccess)
	event.Parameters = telemetry.Parameters{
		File:            item.File,
		EffectiveVolume: intPtr(resolved.Final),
		PreDuckVolume:   intPtr(resolved.PreDuck),
		Ducked:          boolPtr(resolved.Ducked),
		Warnings:        warningStrings(resolved.Warnings),
	}
	if v.sink != nil {
		_ = v.sink.Outcome(ctx, event)
	}
}

// advance completes the current item on natural end (fromTracker=true) or
// EOF and starts the next queued one.
func (v *Video) advance(ctx context.Context, fromTracker bool) {
	v.mu.Lock()
	if v.current == nil {
		v.mu.Unlock()
		return
	}
	finished := v.current
	trigger := v.trigger
	trk := v.trk
	v.current = nil
	v.trigger = ""
	v.trk = nil
	v.mu.Unlock()

	if !fromTracker && trk != nil {
		trk.Stop()
	}
	if trigger != "" {
		v.ducks.Remove(trigger)
		v.notifyDuckEdge()
	}

	event := telemetry.NewOutcomeEvent(now(), v.zone, "video_completed", telemetry.OutcomeSuccess)
	event.Parameters = telemetry.Parameters{File: finished.File}
	if v.sink != nil {
		_ = v.sink.Outcome(ctx, event)
	}

	v.startNext(ctx)
}

// SetImage loads file as a looped still image: a direct, non-queued,
// non-ducking command. Any playing video and queued items are discarded,
// since the image takes over the display.
func (v *Video) SetImage(ctx context.Context, file string) Outcome {
	if !fileExists(file) {
		v.emit(ctx, "setImage", telemetry.OutcomeWarning, file, telemetry.ErrFileNotFound)
		return Outcome{Status: telemetry.OutcomeWarning, WarningType: telemetry.ErrFileNotFound}
	}

	v.dropAll()

	dctx, cancel := playerDeadline(ctx)
	defer cancel()
	if err := v.handle.Load(dctx, file, true); err != nil {
		v.emit(ctx, "setImage", telemetry.OutcomeFailure, file, telemetry.ErrPlayerLoadFailed)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerLoadFailed, Message: err.Error()}
	}
	if err := v.handle.SetLoop(dctx, true); err != nil {
		v.emit(ctx, "setImage", telemetry.OutcomeFailure, file, telemetry.ErrPlayerLoadFailed)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerLoadFailed, Message: err.Error()}
	}
	if err := v.handle.Play(dctx); err != nil {
		v.emit(ctx, "setImage", telemetry.OutcomeFailure, file, telemetry.ErrPlayerLoadFailed)
		return Outcome{Status: telemetry.OutcomeFailure, WarningType: telemetry.ErrPlayerLoadFailed, Message: err.Error()}
	}

	v.mu.Lock()
	v.image = file
	v.mu.Unlock()
	v.emit(ctx, "setImage", telemetry.OutcomeSuccess, file, "")
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// Stop halts the current video or image, empties the queue, and removes
// any held video DuckTrigger.
func (v *Video) Stop(ctx context.Context) Outcome {
	dctx, cancel := playerDeadline(ctx)
	defer cancel()
	if err := v.handle.Stop(dctx); err != nil {
		return Outcome{Status: telemetry.OutcomeFailure, Message: err.Error()}
	}
	v.dropAll()
	return Outcome{Status: telemetry.OutcomeSuccess}
}

// dropAll tears down the active item's trigger/tracker, discards the
// queue, and clears any displayed image.
func (v *Video) dropAll() {
	v.mu.Lock()
	trigger := v.trigger
	trk := v.trk
	v.queue.Init()
	v.current = nil
	v.trigger = ""
	v.trk = nil
	v.image = ""
	v.mu.Unlock()

	if trk != nil {
		trk.Stop()
	}
	if trigger != "" {
		v.ducks.Remove(trigger)
		v.notifyDuckEdge()
	}
}

// CurrentFile reports the currently active video or image file, or "".
func (v *Video) CurrentFile() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current != nil {
		return v.current.File
	}
	return v.image
}

// Current reports the active file and whether it is a still image.
func (v *Video) Current() (file string, image bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current != nil {
		return v.current.File, false
	}
	return v.image, v.image != ""
}

// QueueDepth reports the number of videos waiting behind the currently
// playing one.
func (v *Video) QueueDepth() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.queue.Len()
}

func (v *Video) emit(ctx context.Context, command string, status telemetry.Outcome, file string, warningType telemetry.ErrorKind) {
	if v.sink == nil {
		return
	}
	event := telemetry.NewOutcomeEvent(now(), v.zone, command, status)
	event.Parameters = telemetry.Parameters{File: file}
	event.WarningType = warningType
	_ = v.sink.Outcome(ctx, event)
}
