package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/transport"
)

// capturingTransport records published payloads by topic.
type capturingTransport struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newCapturingTransport() *capturingTransport {
	return &capturingTransport{published: make(map[string][][]byte)}
}

func (c *capturingTransport) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic] = append(c.published[topic], payload)
	return nil
}

func (c *capturingTransport) Subscribe(context.Context, string) (<-chan transport.Message, error) {
	return nil, nil
}

func (c *capturingTransport) Close() error { return nil }

func (c *capturingTransport) count(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published[topic])
}

func (c *capturingTransport) last(topic string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.published[topic]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

var _ transport.Transport = (*capturingTransport)(nil)

func TestPublisherRoutesEventsAndStatusToTheirTopics(t *testing.T) {
	tr := newCapturingTransport()
	p := NewPublisher(tr,
		func(zone string) string { return zone + "/events" },
		func(zone string) string { return zone + "/status" })

	event := NewOutcomeEvent(time.Now(), "lobby", "playBackground", OutcomeSuccess)
	require.NoError(t, p.Outcome(context.Background(), event))

	status := NewStatusEvent(time.Now(), "lobby", "playing_audio")
	require.NoError(t, p.Status(context.Background(), status))

	require.Equal(t, 1, tr.count("lobby/events"))
	require.Equal(t, 1, tr.count("lobby/status"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(tr.last("lobby/status"), &decoded))
	assert.Equal(t, "status", decoded["type"])
	assert.Equal(t, "playing_audio", decoded["status"])
}

func TestOutcomeEventWireShape(t *testing.T) {
	tr := newCapturingTransport()
	p := NewPublisher(tr, func(zone string) string { return zone + "/events" }, nil)

	vol := 80
	eff := 40
	ducked := true
	event := NewOutcomeEvent(time.Now(), "lobby", "playBackground", OutcomeWarning)
	event.Parameters = Parameters{
		File:            "/media/bg.wav",
		Volume:          &vol,
		EffectiveVolume: &eff,
		PreDuckVolume:   &vol,
		Ducked:          &ducked,
		Warnings:        []string{"clamp_abs_high"},
	}
	event.WarningType = ErrVolumeResolutionWarn
	require.NoError(t, p.Outcome(context.Background(), event))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(tr.last("lobby/events"), &decoded))
	assert.Equal(t, "events", decoded["type"])
	assert.Equal(t, "warning", decoded["outcome"])
	assert.Equal(t, "volume_resolution_warning", decoded["warning_type"])

	params, ok := decoded["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(40), params["effective_volume"])
	assert.Equal(t, float64(80), params["pre_duck_volume"])
	assert.Equal(t, true, params["ducked"])
}

func TestRecomputeEventWireShape(t *testing.T) {
	tr := newCapturingTransport()
	p := NewPublisher(tr, func(zone string) string { return zone + "/events" }, nil)

	require.NoError(t, p.Recompute(context.Background(), NewRecomputeEvent(time.Now(), "lobby", 40, 80, true)))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(tr.last("lobby/events"), &decoded))
	assert.Equal(t, true, decoded["background_volume_recomputed"])
	assert.Equal(t, float64(40), decoded["effective_volume"])
	assert.Equal(t, float64(80), decoded["pre_duck_volume"])
	assert.Equal(t, true, decoded["ducked"])
}

func TestHeartbeatPublishesOnInterval(t *testing.T) {
	tr := newCapturingTransport()
	hb := NewHeartbeat(tr, "paradoxfx/heartbeat", 50*time.Millisecond, []string{"stage", "lobby"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.Serve(ctx)

	require.Eventually(t, func() bool {
		return tr.count("paradoxfx/heartbeat") >= 3
	}, 2*time.Second, 10*time.Millisecond)

	var decoded HeartbeatEvent
	require.NoError(t, json.Unmarshal(tr.last("paradoxfx/heartbeat"), &decoded))
	assert.Equal(t, "heartbeat", decoded.Type)
	assert.Equal(t, []string{"lobby", "stage"}, decoded.Zones)
}
