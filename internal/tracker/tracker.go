// Package tracker implements PlaybackTracker: a pause-aware wall-clock
// progress monitor that fires a single "natural end" callback once
// unpaused playback time reaches a target duration, within an epsilon.
// SpeechChannel and VideoChannel use it to detect completion without
// depending on sample-accurate PlayerHandle EOF events, which may arrive
// late or not at all for some player backends.
package tracker

import (
	"sync"
	"time"
)

const (
	tickInterval     = 100 * time.Millisecond
	defaultEpsilonMs = 60
)

type state int

const (
	stateIdle state = iota
	stateRunning
	statePaused
	stateStopped
)

// Tracker monitors elapsed unpaused playback time against an optional
// target duration.
type Tracker struct {
	mu          sync.Mutex
	targetMs    int64 // -1 when no target duration was configured
	epsilon     time.Duration
	onNaturalEnd func()

	state       state
	accumulated time.Duration
	resumedAt   time.Time
	fired       bool
	started     bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Tracker. targetDurationSec <= 0 means no natural-end
// timer: completion must come from PlayerHandle EOF observation instead.
// epsilonMs <= 0 uses the 60ms default.
func New(targetDurationSec float64, onNaturalEnd func(), epsilonMs int) *Tracker {
	if epsilonMs <= 0 {
		epsilonMs = defaultEpsilonMs
	}
	targetMs := int64(-1)
	if targetDurationSec > 0 {
		targetMs = int64(targetDurationSec * 1000)
	}
	return &Tracker{
		targetMs:     targetMs,
		epsilon:      time.Duration(epsilonMs) * time.Millisecond,
		onNaturalEnd: onNaturalEnd,
		state:        stateIdle,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins tracking. No-op if the tracker has no target duration or
// has already been started/stopped.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.state != stateIdle || t.targetMs < 0 {
		t.mu.Unlock()
		return
	}
	t.state = stateRunning
	t.resumedAt = time.Now()
	t.started = true
	t.mu.Unlock()

	go t.run()
}

func (t *Tracker) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	defer close(t.doneCh)

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if t.checkNaturalEnd() {
				return
			}
		}
	}
}

// checkNaturalEnd returns true once the callback has fired (terminal).
func (t *Tracker) checkNaturalEnd() bool {
	t.mu.Lock()
	if t.state != stateRunning {
		terminal := t.state == stateStopped || t.fired
		t.mu.Unlock()
		return terminal
	}
	elapsed := t.accumulated + time.Since(t.resumedAt)
	target := time.Duration(t.targetMs) * time.Millisecond
	ready := elapsed >= target-t.epsilon
	if !ready {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.state = stateStopped
	cb := t.onNaturalEnd
	t.mu.Unlock()

	invokeSafely(cb)
	return true
}

func invokeSafely(cb func()) {
	if cb == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	cb()
}

// Pause freezes accumulation. No-op if not running.
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateRunning {
		return
	}
	t.accumulated += time.Since(t.resumedAt)
	t.state = statePaused
}

// Resume continues accumulation from where Pause left off. No-op if not paused.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != statePaused {
		return
	}
	t.resumedAt = time.Now()
	t.state = stateRunning
}

// Stop terminates tracking. Terminal: the tracker cannot be restarted.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state == stateStopped {
		t.mu.Unlock()
		return
	}
	hadGoroutine := t.started
	t.state = stateStopped
	if hadGoroutine {
		close(t.stopCh)
	}
	t.mu.Unlock()
	if hadGoroutine {
		<-t.doneCh
	}
}

// Elapsed returns the current accumulated unpaused duration.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateRunning {
		return t.accumulated + time.Since(t.resumedAt)
	}
	return t.accumulated
}

// HasTarget reports whether a target duration was configured.
func (t *Tracker) HasTarget() bool {
	return t.targetMs >= 0
}
