package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/player"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/volume"
)

func newTestSpeech(t *testing.T) (*Speech, *player.FakeHandle, *telemetry.FakeSink) {
	t.Helper()
	handle := player.NewFakeHandle()
	sink := telemetry.NewFakeSink()
	s := NewSpeech("zone1", testZoneConfig(), handle, duck.New(), sink)
	t.Cleanup(s.Close)
	return s, handle, sink
}

func outcomeCommands(sink *telemetry.FakeSink, command string) int {
	n := 0
	for _, e := range sink.Outcomes {
		if e.Command == command {
			n++
		}
	}
	return n
}

// Pause-aware completion, scaled down from 12s/2.5s to
// keep the suite fast — the tracker's own tolerance is exercised in
// internal/tracker, so this asserts only the pause-stretches-completion
// behavior end to end.
func TestSpeechPauseAwareCompletion(t *testing.T) {
	s, _, sink := newTestSpeech(t)
	file := writeTempFile(t, "a.wav")

	start := time.Now()
	outcome := s.Enqueue(context.Background(), file, volume.Request{}, nil, 0.8)
	require.Equal(t, telemetry.OutcomeSuccess, outcome.Status)

	time.Sleep(200 * time.Millisecond)
	s.Pause(context.Background())
	time.Sleep(250 * time.Millisecond)
	s.Resume(context.Background())

	require.Eventually(t, func() bool {
		return outcomeCommands(sink, "speech_completed") == 1
	}, 3*time.Second, 20*time.Millisecond)

	// 740ms of unpaused time (0.8s target minus the 60ms default epsilon)
	// plus at least the 250ms spent paused.
	elapsed := time.Since(start)
	assert.True(t, elapsed >= 990*time.Millisecond, "completion should be stretched by the pause duration")
}

// Enqueueing the file that is already playing is suppressed.
func TestSpeechDuplicateSuppression(t *testing.T) {
	s, _, sink := newTestSpeech(t)
	file := writeTempFile(t, "a.wav")

	first := s.Enqueue(context.Background(), file, volume.Request{}, nil, 5)
	require.Equal(t, telemetry.OutcomeSuccess, first.Status)

	second := s.Enqueue(context.Background(), file, volume.Request{}, nil, 5)
	assert.Equal(t, telemetry.OutcomeWarning, second.Status)
	assert.Equal(t, telemetry.ErrDuplicateIgnored, second.WarningType)

	assert.Equal(t, 1, outcomeCommands(sink, "speech_started"))

	s.Clear(context.Background())
}

// Queue sequencing: B starts promptly after A completes.
func TestSpeechQueueSequencing(t *testing.T) {
	s, _, sink := newTestSpeech(t)
	fileA := writeTempFile(t, "a.wav")
	fileB := writeTempFile(t, "b.wav")

	require.Equal(t, telemetry.OutcomeSuccess, s.Enqueue(context.Background(), fileA, volume.Request{}, nil, 0.3).Status)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, telemetry.OutcomeSuccess, s.Enqueue(context.Background(), fileB, volume.Request{}, nil, 0.4).Status)

	require.Eventually(t, func() bool {
		return outcomeCommands(sink, "speech_completed") == 2
	}, 3*time.Second, 20*time.Millisecond)

	var completedA, startedB time.Time
	for _, e := range sink.Outcomes {
		if e.Command == "speech_completed" && e.Parameters.File == fileA {
			completedA = e.Timestamp
		}
		if e.Command == "speech_started" && e.Parameters.File == fileB {
			startedB = e.Timestamp
		}
	}
	require.False(t, completedA.IsZero())
	require.False(t, startedB.IsZero())
	assert.True(t, startedB.Sub(completedA) < 1500*time.Millisecond)
}

func TestSpeechFileNotFound(t *testing.T) {
	s, handle, _ := newTestSpeech(t)
	outcome := s.Enqueue(context.Background(), "/no/such/file.wav", volume.Request{}, nil, 5)
	assert.Equal(t, telemetry.OutcomeWarning, outcome.Status)
	assert.Equal(t, telemetry.ErrFileNotFound, outcome.WarningType)
	assert.Empty(t, handle.Calls)
}

// A per-item ducking of exactly 0 means no duck trigger at all for that
// item, so the background stream stays at full volume while it plays.
func TestSpeechPerItemDuckZeroAddsNoTrigger(t *testing.T) {
	handle := player.NewFakeHandle()
	sink := telemetry.NewFakeSink()
	ducks := duck.New()
	s := NewSpeech("zone1", testZoneConfig(), handle, ducks, sink)
	t.Cleanup(s.Close)

	file := writeTempFile(t, "a.wav")
	zero := 0
	outcome := s.Enqueue(context.Background(), file, volume.Request{}, &zero, 5)
	require.Equal(t, telemetry.OutcomeSuccess, outcome.Status)
	assert.True(t, s.Active())
	assert.False(t, ducks.Active())

	s.Clear(context.Background())
}

func TestSpeechDefaultDuckAddsTrigger(t *testing.T) {
	handle := player.NewFakeHandle()
	ducks := duck.New()
	s := NewSpeech("zone1", testZoneConfig(), handle, ducks, telemetry.NewFakeSink())
	t.Cleanup(s.Close)

	file := writeTempFile(t, "a.wav")
	require.Equal(t, telemetry.OutcomeSuccess, s.Enqueue(context.Background(), file, volume.Request{}, nil, 5).Status)
	assert.Equal(t, 1, ducks.Snapshot().Kinds[duck.KindSpeech])

	s.Clear(context.Background())
	assert.False(t, ducks.Active(), "clear removes the speech trigger")
}

func TestSpeechQueueOverflowDropsOldest(t *testing.T) {
	handle := player.NewFakeHandle()
	cfg := testZoneConfig()
	cfg.QueueLimits.Audio = 1
	s := NewSpeech("zone1", cfg, handle, duck.New(), telemetry.NewFakeSink())
	t.Cleanup(s.Close)

	playing := writeTempFile(t, "playing.wav")
	queuedA := writeTempFile(t, "queued-a.wav")
	queuedB := writeTempFile(t, "queued-b.wav")

	require.Equal(t, telemetry.OutcomeSuccess, s.Enqueue(context.Background(), playing, volume.Request{}, nil, 30).Status)
	require.Equal(t, telemetry.OutcomeSuccess, s.Enqueue(context.Background(), queuedA, volume.Request{}, nil, 30).Status)

	outcome := s.Enqueue(context.Background(), queuedB, volume.Request{}, nil, 30)
	assert.Equal(t, telemetry.OutcomeWarning, outcome.Status)
	assert.Equal(t, telemetry.ErrQueueOverflowDropped, outcome.WarningType)
	assert.Equal(t, 1, s.QueueDepth(), "oldest queued item evicted, newest kept")

	s.Clear(context.Background())
}
