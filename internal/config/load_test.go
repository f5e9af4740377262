package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIni(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pfx.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesGlobalDefaults(t *testing.T) {
	path := writeIni(t, "[global]\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Global.TransportURL)
	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.False(t, cfg.Global.EmbeddedNATS)
	assert.Equal(t, "127.0.0.1", cfg.Global.EmbeddedNATSHost)
	assert.Equal(t, 4222, cfg.Global.EmbeddedNATSPort)
}

func TestLoadEmbeddedNATSSettings(t *testing.T) {
	path := writeIni(t, "[global]\nembedded_nats = true\nembedded_nats_host = 0.0.0.0\nembedded_nats_port = 4300\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Global.EmbeddedNATS)
	assert.Equal(t, "0.0.0.0", cfg.Global.EmbeddedNATSHost)
	assert.Equal(t, 4300, cfg.Global.EmbeddedNATSPort)
}

func TestLoadLegacyUpperSnakeAliases(t *testing.T) {
	path := writeIni(t, "[global]\nTRANSPORT_URL = nats://legacy:4222\nLOG_LEVEL = debug\nEMBEDDED_NATS = true\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://legacy:4222", cfg.Global.TransportURL)
	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.True(t, cfg.Global.EmbeddedNATS)
}

func TestLoadModernKeyWinsOverLegacyAlias(t *testing.T) {
	path := writeIni(t, "[global]\nTRANSPORT_URL = nats://legacy:4222\ntransport_url = nats://modern:4222\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://modern:4222", cfg.Global.TransportURL)
}

func TestLoadZoneDefaultsAndClamping(t *testing.T) {
	path := writeIni(t, "[global]\n\n[hallway]\nkind = audio\nmax_volume = 999\nbackground_volume = -10\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	zc, ok := cfg.Zones["hallway"]
	require.True(t, ok)
	assert.Equal(t, ZoneKindAudio, zc.Kind)
	assert.Equal(t, 200, zc.MaxVolume)
	assert.Equal(t, 0, zc.BaseVolumes.Background)
	assert.Equal(t, "hallway", zc.BaseTopic)
}

func TestLoadRejectsInvalidZoneKind(t *testing.T) {
	path := writeIni(t, "[global]\n\n[lobby]\nkind = unknown\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadLegacyDuckingVolumeTranslatesToAdjust(t *testing.T) {
	path := writeIni(t, "[global]\n\n[lobby]\nkind = audio\nDUCKING_VOLUME = 70\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	zc := cfg.Zones["lobby"]
	assert.Equal(t, -30, zc.DuckingAdjust)
}

func TestLoadModernDuckingAdjustWinsOverLegacyVolume(t *testing.T) {
	path := writeIni(t, "[global]\n\n[lobby]\nkind = audio\nDUCKING_VOLUME = 70\nducking_adjust = -15\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	zc := cfg.Zones["lobby"]
	assert.Equal(t, -15, zc.DuckingAdjust)
}

func TestLoadCombinedSinksYAMLList(t *testing.T) {
	path := writeIni(t, "[global]\n\n[lobby]\nkind = audio\ncombined_sinks = [\"alsa_output.one\", \"alsa_output.two\"]\ncombined_sink_name = lobby_combined\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	zc := cfg.Zones["lobby"]
	require.NotNil(t, zc.CombinedSink)
	assert.Equal(t, []string{"alsa_output.one", "alsa_output.two"}, zc.CombinedSink.Slaves)
	assert.Equal(t, "lobby_combined", zc.CombinedSink.Name)
}

func TestLoadCombinedSinksCommaFallback(t *testing.T) {
	path := writeIni(t, "[global]\n\n[lobby]\nkind = audio\ncombined_sinks = alsa_output.one, alsa_output.two\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	zc := cfg.Zones["lobby"]
	require.NotNil(t, zc.CombinedSink)
	assert.Equal(t, []string{"alsa_output.one", "alsa_output.two"}, zc.CombinedSink.Slaves)
	assert.Equal(t, "lobby_combined", zc.CombinedSink.Name)
}

func TestLoadPlayerOptionsYAMLBlob(t *testing.T) {
	path := writeIni(t, "[global]\n\n[lobby]\nkind = audio\nplayer_options = {background: {network: tcp, address: \"127.0.0.1:9001\"}}\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	zc := cfg.Zones["lobby"]
	require.NotNil(t, zc.PlayerOptions)
	bg, ok := zc.PlayerOptions["background"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "tcp", bg["network"])
	assert.Equal(t, "127.0.0.1:9001", bg["address"])
}

func TestLoadMQTTSectionCarriedAsLegacy(t *testing.T) {
	path := writeIni(t, "[global]\n\n[mqtt]\nbroker = tcp://legacy:1883\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://legacy:1883", cfg.Global.LegacyMQTT["broker"])
}

func TestLoadGlobalDuckDefaultsFlowIntoZones(t *testing.T) {
	path := writeIni(t, "[global]\ndefault_duck_adjust = -35\ndefault_speech_duck = -60\n\n[lobby]\nkind = audio\n\n[stage]\nkind = audio\nducking_adjust = -10\nspeech_duck_override = -90\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	lobby := cfg.Zones["lobby"]
	assert.Equal(t, -35, lobby.DuckingAdjust)
	require.NotNil(t, lobby.SpeechDuckOverride)
	assert.Equal(t, -60, *lobby.SpeechDuckOverride)

	stage := cfg.Zones["stage"]
	assert.Equal(t, -10, stage.DuckingAdjust)
	require.NotNil(t, stage.SpeechDuckOverride)
	assert.Equal(t, -90, *stage.SpeechDuckOverride)
}

func TestLoadDuckOverridesClamped(t *testing.T) {
	path := writeIni(t, "[global]\n\n[lobby]\nkind = audio\nspeech_duck_override = 25\nvideo_duck_override = -150\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	zc := cfg.Zones["lobby"]
	require.NotNil(t, zc.SpeechDuckOverride)
	assert.Equal(t, 0, *zc.SpeechDuckOverride)
	require.NotNil(t, zc.VideoDuckOverride)
	assert.Equal(t, -100, *zc.VideoDuckOverride)
}

func TestLoadRelativeMediaDirAnchoredToDefault(t *testing.T) {
	path := writeIni(t, "[global]\ndefault_media_dir = /opt/media\n\n[lobby]\nkind = audio\nmedia_dir = lobby\n\n[stage]\nkind = audio\nmedia_dir = /srv/stage\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/media/lobby", cfg.Zones["lobby"].MediaDir)
	assert.Equal(t, "/srv/stage", cfg.Zones["stage"].MediaDir)
}
