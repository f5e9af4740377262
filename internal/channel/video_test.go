package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/player"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/volume"
)

func newTestVideo(t *testing.T, cfg config.ZoneConfig) (*Video, *player.FakeHandle, *duck.Lifecycle, *telemetry.FakeSink) {
	t.Helper()
	handle := player.NewFakeHandle()
	ducks := duck.New()
	sink := telemetry.NewFakeSink()
	v := NewVideo("zone1", cfg, handle, ducks, sink)
	t.Cleanup(v.Close)
	return v, handle, ducks, sink
}

func TestVideoPlayAddsAndRemovesDuckTrigger(t *testing.T) {
	file := writeTempFile(t, "v.mp4")
	v, _, ducks, _ := newTestVideo(t, testZoneConfig())

	outcome := v.PlayVideo(context.Background(), file, volume.Request{}, 0.3)
	require.Equal(t, telemetry.OutcomeSuccess, outcome.Status)
	assert.True(t, ducks.Active())

	require.Eventually(t, func() bool { return !ducks.Active() }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "", v.CurrentFile())
}

func TestVideoQueueSequencing(t *testing.T) {
	fileA := writeTempFile(t, "a.mp4")
	fileB := writeTempFile(t, "b.mp4")
	v, _, _, sink := newTestVideo(t, testZoneConfig())

	require.Equal(t, telemetry.OutcomeSuccess, v.PlayVideo(context.Background(), fileA, volume.Request{}, 0.3).Status)
	require.Equal(t, telemetry.OutcomeSuccess, v.PlayVideo(context.Background(), fileB, volume.Request{}, 0.3).Status)

	assert.Equal(t, fileA, v.CurrentFile())
	assert.Equal(t, 1, v.QueueDepth())

	require.Eventually(t, func() bool {
		return outcomeCommands(sink, "video_completed") == 2
	}, 3*time.Second, 20*time.Millisecond)

	var completedA, startedB time.Time
	for _, e := range sink.Outcomes {
		if e.Command == "video_completed" && e.Parameters.File == fileA {
			completedA = e.Timestamp
		}
		if e.Command == "video_started" && e.Parameters.File == fileB {
			startedB = e.Timestamp
		}
	}
	require.False(t, completedA.IsZero())
	require.False(t, startedB.IsZero())
	assert.True(t, startedB.Sub(completedA) < 1500*time.Millisecond)
}

func TestVideoQueueOverflowDropsOldest(t *testing.T) {
	cfg := testZoneConfig()
	cfg.QueueLimits.Video = 1
	v, _, _, _ := newTestVideo(t, cfg)

	playing := writeTempFile(t, "playing.mp4")
	queuedA := writeTempFile(t, "queued-a.mp4")
	queuedB := writeTempFile(t, "queued-b.mp4")

	require.Equal(t, telemetry.OutcomeSuccess, v.PlayVideo(context.Background(), playing, volume.Request{}, 30).Status)
	require.Equal(t, telemetry.OutcomeSuccess, v.PlayVideo(context.Background(), queuedA, volume.Request{}, 30).Status)

	outcome := v.PlayVideo(context.Background(), queuedB, volume.Request{}, 30)
	assert.Equal(t, telemetry.OutcomeWarning, outcome.Status)
	assert.Equal(t, telemetry.ErrQueueOverflowDropped, outcome.WarningType)
	assert.Equal(t, 1, v.QueueDepth(), "oldest queued item evicted, newest kept")
}

func TestVideoStopEmptiesQueue(t *testing.T) {
	fileA := writeTempFile(t, "a.mp4")
	fileB := writeTempFile(t, "b.mp4")
	v, _, ducks, _ := newTestVideo(t, testZoneConfig())

	v.PlayVideo(context.Background(), fileA, volume.Request{}, 30)
	v.PlayVideo(context.Background(), fileB, volume.Request{}, 30)
	require.Equal(t, 1, v.QueueDepth())

	outcome := v.Stop(context.Background())
	require.Equal(t, telemetry.OutcomeSuccess, outcome.Status)
	assert.Equal(t, 0, v.QueueDepth())
	assert.Equal(t, "", v.CurrentFile())
	assert.False(t, ducks.Active())
}

func TestSetImageIsNonDucking(t *testing.T) {
	file := writeTempFile(t, "still.png")
	v, handle, ducks, _ := newTestVideo(t, testZoneConfig())

	outcome := v.SetImage(context.Background(), file)
	require.Equal(t, telemetry.OutcomeSuccess, outcome.Status)
	assert.False(t, ducks.Active())
	assert.True(t, handle.Loop)

	_, image := v.Current()
	assert.True(t, image)
}
