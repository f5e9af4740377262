package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
)

// legacyAliases maps a legacy UPPER_SNAKE key to its modern snake_case name.
// Both are accepted in every section.
var legacyAliases = map[string]string{
	"MEDIA_DIR":            "media_dir",
	"AUDIO_DEVICE":         "audio_device",
	"BASE_VOLUME":          "base_volume",
	"MAX_VOLUME":           "max_volume",
	"DUCKING_ADJUST":       "ducking_adjust",
	"DUCKING_VOLUME":       "ducking_volume",
	"SPEECH_DUCK_OVERRIDE": "speech_duck_override",
	"VIDEO_DUCK_OVERRIDE":  "video_duck_override",
	"DEFAULT_SPEECH_DUCK":  "default_speech_duck",
	"DEFAULT_VIDEO_DUCK":   "default_video_duck",
	"BASE_TOPIC":           "base_topic",
	"STATUS_TOPIC":         "status_topic",
	"COMBINED_SINKS":       "combined_sinks",
	"COMBINED_SINK_NAME":   "combined_sink_name",
	"COMBINED_SINK_DESC":   "combined_sink_description",
	"QUEUE_LIMIT_VIDEO":    "queue_limit_video",
	"QUEUE_LIMIT_AUDIO":    "queue_limit_audio",
	"LOG_LEVEL":            "log_level",
	"HEARTBEAT_TOPIC":      "heartbeat_topic",
	"HEARTBEAT_INTERVAL":   "heartbeat_interval",
	"TRANSPORT_URL":        "transport_url",
	"DEFAULT_MEDIA_DIR":    "default_media_dir",
	"DEFAULT_DUCK_ADJUST":  "default_duck_adjust",
	"EMBEDDED_NATS":        "embedded_nats",
	"EMBEDDED_NATS_HOST":   "embedded_nats_host",
	"EMBEDDED_NATS_PORT":   "embedded_nats_port",
}

// canonicalKeys returns a flat map of every key in a section, resolving
// legacy UPPER_SNAKE aliases to their canonical snake_case name. A key
// present under both its legacy and modern spelling prefers the modern one.
func canonicalKeys(section *ini.Section) map[string]string {
	out := make(map[string]string)
	for _, key := range section.Keys() {
		name := key.Name()
		if canon, ok := legacyAliases[name]; ok {
			if _, exists := out[canon]; !exists {
				out[canon] = key.Value()
			}
			continue
		}
		out[name] = key.Value()
	}
	return out
}

func intOr(m map[string]string, key string, def int) int {
	v, ok := m[key]
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func boolOr(m map[string]string, key string, def bool) bool {
	v, ok := m[key]
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func strOr(m map[string]string, key, def string) string {
	v, ok := m[key]
	if !ok || v == "" {
		return def
	}
	return v
}

func intPtr(m map[string]string, key string) *int {
	v, ok := m[key]
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &n
}

// Load reads the given INI file into a validated, clamped Config.
func Load(path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}

	cfg := &Config{Zones: make(map[string]ZoneConfig)}

	if global := f.Section("global"); global != nil {
		g := canonicalKeys(global)
		cfg.Global = GlobalConfig{
			TransportURL:      strOr(g, "transport_url", "nats://127.0.0.1:4222"),
			HeartbeatTopic:    strOr(g, "heartbeat_topic", "paradoxfx/heartbeat"),
			HeartbeatInterval: durationOr(g, "heartbeat_interval", 30*time.Second),
			DefaultMediaDir:   strOr(g, "default_media_dir", "."),
			DefaultDuckAdjust: intOr(g, "default_duck_adjust", 0),
			DefaultSpeechDuck: intPtr(g, "default_speech_duck"),
			DefaultVideoDuck:  intPtr(g, "default_video_duck"),
			LogLevel:          strOr(g, "log_level", "info"),
			EmbeddedNATS:      boolOr(g, "embedded_nats", false),
			EmbeddedNATSHost:  strOr(g, "embedded_nats_host", "127.0.0.1"),
			EmbeddedNATSPort:  intOr(g, "embedded_nats_port", 4222),
		}
	}

	if mqtt := f.Section("mqtt"); mqtt != nil {
		legacy := make(map[string]string)
		for _, key := range mqtt.Keys() {
			legacy[key.Name()] = key.Value()
		}
		if len(legacy) > 0 {
			cfg.Global.LegacyMQTT = legacy
		}
	}

	for _, section := range f.Sections() {
		name := section.Name()
		if name == ini.DefaultSection || name == "global" || name == "mqtt" {
			continue
		}
		zc, err := parseZone(name, section, cfg.Global)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", name, err)
		}
		cfg.Zones[name] = zc
	}

	cfg.Normalize()
	return cfg, nil
}

func durationOr(m map[string]string, key string, def time.Duration) time.Duration {
	v, ok := m[key]
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		if secs, err2 := strconv.Atoi(strings.TrimSpace(v)); err2 == nil {
			return time.Duration(secs) * time.Second
		}
		return def
	}
	return d
}

func parseZone(name string, section *ini.Section, g GlobalConfig) (ZoneConfig, error) {
	m := canonicalKeys(section)

	kind := ZoneKind(strOr(m, "kind", "audio"))
	if kind != ZoneKindScreen && kind != ZoneKindAudio {
		return ZoneConfig{}, fmt.Errorf("invalid kind %q", kind)
	}

	// A relative zone media_dir is anchored under the global default
	// media path; absolute paths stand alone.
	mediaDir := g.DefaultMediaDir
	if v, ok := m["media_dir"]; ok && v != "" {
		if filepath.IsAbs(v) || g.DefaultMediaDir == "" {
			mediaDir = v
		} else {
			mediaDir = filepath.Join(g.DefaultMediaDir, v)
		}
	}

	zc := ZoneConfig{
		Name:        name,
		Kind:        kind,
		BaseTopic:   strOr(m, "base_topic", name),
		StatusTopic: strOr(m, "status_topic", ""),
		MediaDir:    mediaDir,
		AudioDevice: strOr(m, "audio_device", ""),
		BaseVolumes: BaseVolumes{
			Background: intOr(m, "background_volume", 100),
			Speech:     intOr(m, "speech_volume", 100),
			Effects:    intOr(m, "effects_volume", 100),
			Video:      intOr(m, "video_volume", 100),
		},
		MaxVolume:          intOr(m, "max_volume", defaultMaxVolume()),
		SpeechDuckOverride: intPtr(m, "speech_duck_override"),
		VideoDuckOverride:  intPtr(m, "video_duck_override"),
		QueueLimits: QueueLimits{
			Video: intOr(m, "queue_limit_video", 0),
			Audio: intOr(m, "queue_limit_audio", 0),
		},
	}

	zc.DuckingAdjust = g.DefaultDuckAdjust
	if zc.SpeechDuckOverride == nil {
		zc.SpeechDuckOverride = g.DefaultSpeechDuck
	}
	if zc.VideoDuckOverride == nil {
		zc.VideoDuckOverride = g.DefaultVideoDuck
	}

	if legacy, ok := m["ducking_volume"]; ok && legacy != "" {
		// legacy target (0-100) translates to a negative adjust percentage,
		// with modern ducking_adjust taking precedence if also present.
		if n, err := strconv.Atoi(strings.TrimSpace(legacy)); err == nil {
			target := clampInt(n, 0, 100)
			zc.DuckingAdjust = -(100 - target)
			logger := logging.ForComponent("config")
			logger.Warn().
				Str("zone", name).
				Int("ducking_volume", n).
				Int("ducking_adjust", zc.DuckingAdjust).
				Msg("legacy ducking_volume translated to ducking_adjust")
		}
	}
	if v, ok := m["ducking_adjust"]; ok && v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			zc.DuckingAdjust = n
		}
	}

	if sinks, ok := m["combined_sinks"]; ok && sinks != "" {
		var slaves []string
		if err := yaml.Unmarshal([]byte(sinks), &slaves); err != nil {
			// Accept a plain comma-separated fallback for hand-edited INI files.
			for _, s := range strings.Split(sinks, ",") {
				s = strings.TrimSpace(s)
				if s != "" {
					slaves = append(slaves, s)
				}
			}
		}
		if len(slaves) > 0 {
			zc.CombinedSink = &CombinedSinkDecl{
				Slaves:      slaves,
				Name:        strOr(m, "combined_sink_name", name+"_combined"),
				Description: strOr(m, "combined_sink_description", ""),
			}
		}
	}

	if opts, ok := m["player_options"]; ok && opts != "" {
		var parsed map[string]any
		if err := yaml.Unmarshal([]byte(opts), &parsed); err == nil {
			zc.PlayerOptions = parsed
		}
	}

	return zc, nil
}
