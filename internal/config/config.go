// Package config loads and validates ParadoxFX's INI configuration into
// an immutable Config value. Zones, volumes, and queue limits are all
// clamped here so every downstream package can trust the ranges documented
// for them.
package config

import "time"

// ZoneKind distinguishes the two zone specializations the runtime supports.
type ZoneKind string

const (
	ZoneKindScreen ZoneKind = "screen"
	ZoneKindAudio  ZoneKind = "audio"
)

// BaseVolumes holds the per-stream-type default volume for a zone.
type BaseVolumes struct {
	Background int
	Speech     int
	Effects    int
	Video      int
}

// QueueLimits bounds the number of items a zone's queues will hold before
// the oldest queued item is evicted.
type QueueLimits struct {
	Video int
	Audio int
}

// CombinedSinkDecl describes the OS-level combined audio sink a zone's
// background/speech/effects streams should be routed through.
type CombinedSinkDecl struct {
	Slaves      []string
	Name        string
	Description string
}

// ZoneConfig is the validated, clamped configuration for a single zone.
type ZoneConfig struct {
	Name               string
	Kind               ZoneKind
	BaseTopic          string
	StatusTopic        string
	MediaDir           string
	AudioDevice        string
	BaseVolumes        BaseVolumes
	MaxVolume          int
	DuckingAdjust      int
	SpeechDuckOverride *int
	VideoDuckOverride  *int
	CombinedSink       *CombinedSinkDecl
	QueueLimits        QueueLimits
	PlayerOptions      map[string]any
}

// GlobalConfig holds process-wide settings.
type GlobalConfig struct {
	TransportURL       string
	HeartbeatTopic      string
	HeartbeatInterval  time.Duration
	DefaultMediaDir    string
	DefaultDuckAdjust  int
	DefaultSpeechDuck  *int
	DefaultVideoDuck   *int
	LogLevel           string
	// LegacyMQTT carries the [mqtt] section verbatim for deployments still
	// declaring it; the NATS transport does not consume it.
	LegacyMQTT map[string]string
	// EmbeddedNATS, when true, starts an in-process NATS JetStream server
	// (internal/transport.EmbeddedServer) instead of dialing TransportURL as
	// an external broker, for single-box installations with no separate
	// NATS deployment.
	EmbeddedNATS     bool
	EmbeddedNATSHost string
	EmbeddedNATSPort int
}

// Config is the fully loaded, validated, immutable configuration.
type Config struct {
	Global GlobalConfig
	Zones  map[string]ZoneConfig
}

// clampInt clamps v into [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func defaultQueueLimits() QueueLimits {
	return QueueLimits{Video: 5, Audio: 5}
}

func defaultMaxVolume() int {
	return 150
}

// normalize clamps a ZoneConfig produced by the loader (or constructed
// directly by callers, e.g. in tests) into its documented ranges.
func (z *ZoneConfig) normalize() {
	if z.MaxVolume == 0 {
		z.MaxVolume = defaultMaxVolume()
	}
	z.MaxVolume = clampInt(z.MaxVolume, 0, 200)

	z.BaseVolumes.Background = clampInt(z.BaseVolumes.Background, 0, 200)
	z.BaseVolumes.Speech = clampInt(z.BaseVolumes.Speech, 0, 200)
	z.BaseVolumes.Effects = clampInt(z.BaseVolumes.Effects, 0, 200)
	z.BaseVolumes.Video = clampInt(z.BaseVolumes.Video, 0, 200)

	z.DuckingAdjust = clampInt(z.DuckingAdjust, -100, 0)
	if z.SpeechDuckOverride != nil {
		v := clampInt(*z.SpeechDuckOverride, -100, 0)
		z.SpeechDuckOverride = &v
	}
	if z.VideoDuckOverride != nil {
		v := clampInt(*z.VideoDuckOverride, -100, 0)
		z.VideoDuckOverride = &v
	}

	if z.QueueLimits.Video == 0 {
		z.QueueLimits.Video = defaultQueueLimits().Video
	}
	if z.QueueLimits.Audio == 0 {
		z.QueueLimits.Audio = defaultQueueLimits().Audio
	}
}

// Normalize clamps every zone's numeric ranges in place. Callers that build
// a Config outside of Load (tests, programmatic setup) should call this
// before handing the Config to the runtime.
func (c *Config) Normalize() {
	for name, z := range c.Zones {
		z.Name = name
		z.normalize()
		c.Zones[name] = z
	}
}
