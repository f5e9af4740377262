// Package channel implements the four per-zone media actors driven by
// ZoneStateMachine: BackgroundChannel (a single persistent stream),
// SpeechChannel (a duplicate-suppressing FIFO queue), EffectsChannel
// (fire-and-forget overlapping spawns), and VideoChannel (a bounded FIFO
// of videos played one at a time, plus direct still-image display: the
// screen-zone analogue of SpeechChannel).
package channel

import (
	"context"
	"os"
	"time"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/duck"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/player"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/volume"
)

// Outcome is the result of a single channel operation, forwarded by the
// zone to the command's OutcomeEvent.
type Outcome struct {
	Status      telemetry.Outcome
	Warnings    []volume.WarningCode
	WarningType telemetry.ErrorKind
	Message     string
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// zoneModel converts the channel-relevant subset of a ZoneConfig into the
// shape volume.Resolve expects.
func zoneModel(cfg config.ZoneConfig) volume.ZoneModel {
	return volume.ZoneModel{
		BaseVolumes: map[volume.StreamType]int{
			volume.Background: cfg.BaseVolumes.Background,
			volume.Speech:     cfg.BaseVolumes.Speech,
			volume.Effects:    cfg.BaseVolumes.Effects,
			volume.Video:      cfg.BaseVolumes.Video,
		},
		MaxVolume:     cfg.MaxVolume,
		DuckingAdjust: cfg.DuckingAdjust,
	}
}

// effectiveDuckAdjust picks the ducking adjust the background stream
// should apply given the currently active triggers. Precedence per
// trigger: its own per-item adjust, then the zone's per-kind override
// (speech_duck_override / video_duck_override), then the zone-wide
// ducking_adjust. With multiple triggers active the deepest (most
// negative) adjust wins. With no triggers the zone default is returned;
// the resolver ignores it since duckActive is false.
func effectiveDuckAdjust(cfg config.ZoneConfig, entries map[string]duck.Trigger) int {
	adjust := cfg.DuckingAdjust
	first := true
	for _, trig := range entries {
		v := cfg.DuckingAdjust
		switch trig.Kind {
		case duck.KindSpeech:
			if cfg.SpeechDuckOverride != nil {
				v = *cfg.SpeechDuckOverride
			}
		case duck.KindVideo:
			if cfg.VideoDuckOverride != nil {
				v = *cfg.VideoDuckOverride
			}
		}
		if trig.Adjust != nil {
			v = *trig.Adjust
		}
		if first || v < adjust {
			adjust = v
			first = false
		}
	}
	return adjust
}

func warningStrings(codes []volume.WarningCode) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// playerDeadline bounds a single PlayerHandle call, per the documented 5s
// response deadline.
func playerDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return player.WithDeadline(ctx)
}

// now is overridable in tests so telemetry timestamps are deterministic.
var now = time.Now
