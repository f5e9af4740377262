package telemetry

import (
	"context"
	"sync"
)

// FakeSink is an in-memory Sink recording every event published to it, for
// use in channel and zone tests that assert on emitted telemetry.
type FakeSink struct {
	mu         sync.Mutex
	Outcomes   []OutcomeEvent
	Recomputes []RecomputeEvent
	Statuses   []StatusEvent
}

// NewFakeSink returns a ready-to-use FakeSink.
func NewFakeSink() *FakeSink { return &FakeSink{} }

var _ Sink = (*FakeSink)(nil)

func (f *FakeSink) Outcome(_ context.Context, event OutcomeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outcomes = append(f.Outcomes, event)
	return nil
}

func (f *FakeSink) Recompute(_ context.Context, event RecomputeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Recomputes = append(f.Recomputes, event)
	return nil
}

func (f *FakeSink) Status(_ context.Context, event StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses = append(f.Statuses, event)
	return nil
}

// LastStatus returns the most recently recorded StatusEvent, or the zero
// value if none have been recorded.
func (f *FakeSink) LastStatus() StatusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Statuses) == 0 {
		return StatusEvent{}
	}
	return f.Statuses[len(f.Statuses)-1]
}

// Last returns the most recently recorded OutcomeEvent, or the zero value
// if none have been recorded.
func (f *FakeSink) Last() OutcomeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Outcomes) == 0 {
		return OutcomeEvent{}
	}
	return f.Outcomes[len(f.Outcomes)-1]
}

// LastRecompute returns the most recently recorded RecomputeEvent, or the
// zero value if none have been recorded.
func (f *FakeSink) LastRecompute() RecomputeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Recomputes) == 0 {
		return RecomputeEvent{}
	}
	return f.Recomputes[len(f.Recomputes)-1]
}
