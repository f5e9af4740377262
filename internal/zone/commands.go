package zone

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/channel"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/telemetry"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/volume"
)

// numField reads a numeric key. ok reports presence; err is non-nil when
// the key is present but carries a non-numeric value, which callers must
// reject rather than treat as absent.
func numField(raw map[string]any, key string) (val float64, ok bool, err error) {
	v, present := raw[key]
	if !present {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	default:
		return 0, false, fmt.Errorf("%s must be numeric", key)
	}
}

func stringField(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolField(raw map[string]any, key string) (bool, bool) {
	v, ok := raw[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// resolvePath anchors a relative media file reference to the zone's media
// directory; absolute paths pass through untouched.
func (m *Machine) resolvePath(file string) string {
	if file == "" || filepath.IsAbs(file) || m.cfg.MediaDir == "" {
		return file
	}
	return filepath.Join(m.cfg.MediaDir, file)
}

func volumeRequest(raw map[string]any) (volume.Request, error) {
	var req volume.Request
	v, ok, err := numField(raw, "volume")
	if err != nil {
		return req, err
	}
	if ok {
		iv := int(v)
		req.AbsoluteVolume = &iv
	}
	adj, ok, err := numField(raw, "adjustVolume")
	if err != nil {
		return req, err
	}
	if ok {
		req.AdjustPercent = &adj
	}
	if b, ok := boolField(raw, "skipDucking"); ok {
		req.SkipDucking = b
	}
	return req, nil
}

// handleCommand validates and dispatches a single decoded command object.
func (m *Machine) handleCommand(ctx context.Context, raw map[string]any) channel.Outcome {
	command, ok := commandName(raw)
	if !ok {
		return m.fail(ctx, "", telemetry.ErrInvalidCommandShape, "missing command field")
	}

	m.mu.Lock()
	m.state.LastCommand = command
	m.mu.Unlock()

	switch command {
	case "playbackground", "playbackgroundmusic", "playmusic":
		return m.playBackground(ctx, raw, command)
	case "stopbackgroundmusic":
		return m.runOutcome(ctx, command, m.background.Stop(ctx))
	case "playspeech":
		return m.playSpeech(ctx, raw, command)
	case "clearspeechqueue":
		return m.runOutcome(ctx, command, m.speech.Clear(ctx))
	case "pausespeech":
		return m.runOutcome(ctx, command, m.speech.Pause(ctx))
	case "resumespeech":
		return m.runOutcome(ctx, command, m.speech.Resume(ctx))
	case "skipspeech":
		return m.runOutcome(ctx, command, m.speech.Skip(ctx))
	case "playsoundeffect", "playeffect", "playaudiofx":
		return m.playEffect(ctx, raw, command)
	case "setvolume":
		return m.setVolume(ctx, raw, command)
	case "getstatus":
		return m.getStatus(ctx, command)
	case "stopall":
		return m.runOutcome(ctx, command, m.stopAll(ctx))
	case "setimage":
		return m.setImage(ctx, raw, command)
	case "playvideo":
		return m.playVideo(ctx, raw, command)
	case "stopvideo":
		return m.stopVideo(ctx, command)
	case "transition":
		return m.setImage(ctx, raw, command)
	default:
		return m.fail(ctx, command, telemetry.ErrUnknownCommand, "unknown command")
	}
}

func (m *Machine) fail(ctx context.Context, command string, kind telemetry.ErrorKind, message string) channel.Outcome {
	outcome := channel.Outcome{Status: telemetry.OutcomeWarning, WarningType: kind, Message: message}
	if m.sink != nil {
		event := telemetry.NewOutcomeEvent(now(), m.name, command, telemetry.OutcomeWarning)
		event.WarningType = kind
		event.Message = message
		_ = m.sink.Outcome(ctx, event)
	}
	return outcome
}

// runOutcome emits the command-level OutcomeEvent for the simple stop/
// pause/resume style commands whose channels only emit lifecycle events
// (speech_queue_cleared and the like), keeping the one-OutcomeEvent-per-
// command contract.
func (m *Machine) runOutcome(ctx context.Context, command string, outcome channel.Outcome) channel.Outcome {
	m.mu.Lock()
	m.state.LastEvent = command
	m.mu.Unlock()
	if m.sink != nil {
		event := telemetry.NewOutcomeEvent(now(), m.name, command, outcome.Status)
		event.WarningType = outcome.WarningType
		event.Message = outcome.Message
		_ = m.sink.Outcome(ctx, event)
	}
	return outcome
}

func (m *Machine) playBackground(ctx context.Context, raw map[string]any, command string) channel.Outcome {
	file, ok := stringField(raw, "file")
	if !ok || file == "" {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, "file is required")
	}
	req, err := volumeRequest(raw)
	if err != nil {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, err.Error())
	}
	loop, _ := boolField(raw, "loop")
	return m.background.Play(ctx, m.resolvePath(file), req, channel.PlayOptions{Loop: loop})
}

func (m *Machine) playSpeech(ctx context.Context, raw map[string]any, command string) channel.Outcome {
	file, ok := stringField(raw, "file")
	if !ok || file == "" {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, "file is required")
	}
	req, err := volumeRequest(raw)
	if err != nil {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, err.Error())
	}
	ducking, hasDucking, err := numField(raw, "ducking")
	if err != nil {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, err.Error())
	}
	var perItemDuck *int
	if hasDucking {
		iv := int(ducking)
		perItemDuck = &iv
	}
	duration, _, err := numField(raw, "duration")
	if err != nil {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, err.Error())
	}
	return m.speech.Enqueue(ctx, m.resolvePath(file), req, perItemDuck, duration)
}

func (m *Machine) playEffect(ctx context.Context, raw map[string]any, command string) channel.Outcome {
	file, ok := stringField(raw, "file")
	if !ok || file == "" {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, "file is required")
	}
	req, err := volumeRequest(raw)
	if err != nil {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, err.Error())
	}
	return m.effects.Play(ctx, m.resolvePath(file), req)
}

func (m *Machine) setVolume(ctx context.Context, raw map[string]any, command string) channel.Outcome {
	v, ok, err := numField(raw, "volume")
	if err != nil {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, err.Error())
	}
	if !ok {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, "volume is required")
	}
	iv := int(v)
	if iv < 0 || iv > m.cfg.MaxVolume {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, "volume out of range")
	}
	m.background.SetPreDuckVolume(ctx, iv)
	outcome := channel.Outcome{Status: telemetry.OutcomeSuccess}
	if m.sink != nil {
		event := telemetry.NewOutcomeEvent(now(), m.name, command, telemetry.OutcomeSuccess)
		event.Parameters = telemetry.Parameters{Volume: &iv}
		_ = m.sink.Outcome(ctx, event)
	}
	return outcome
}

func (m *Machine) getStatus(ctx context.Context, command string) channel.Outcome {
	m.publishStatus(ctx)
	if m.sink != nil {
		event := telemetry.NewOutcomeEvent(now(), m.name, command, telemetry.OutcomeSuccess)
		_ = m.sink.Outcome(ctx, event)
	}
	return channel.Outcome{Status: telemetry.OutcomeSuccess}
}

func (m *Machine) stopAll(ctx context.Context) channel.Outcome {
	m.background.Stop(ctx)
	m.speech.Clear(ctx)
	if m.video != nil {
		m.video.Stop(ctx)
	}
	return channel.Outcome{Status: telemetry.OutcomeSuccess}
}

func (m *Machine) setImage(ctx context.Context, raw map[string]any, command string) channel.Outcome {
	if m.video == nil {
		return m.fail(ctx, command, telemetry.ErrInvalidCommandShape, "command requires a screen-kind zone")
	}
	file, ok := stringField(raw, "file")
	if !ok || file == "" {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, "file is required")
	}
	return m.video.SetImage(ctx, m.resolvePath(file))
}

func (m *Machine) playVideo(ctx context.Context, raw map[string]any, command string) channel.Outcome {
	if m.video == nil {
		return m.fail(ctx, command, telemetry.ErrInvalidCommandShape, "command requires a screen-kind zone")
	}
	file, ok := stringField(raw, "file")
	if !ok || file == "" {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, "file is required")
	}
	req, err := volumeRequest(raw)
	if err != nil {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, err.Error())
	}
	duration, _, err := numField(raw, "duration")
	if err != nil {
		return m.fail(ctx, command, telemetry.ErrInvalidParameters, err.Error())
	}
	return m.video.PlayVideo(ctx, m.resolvePath(file), req, duration)
}

func (m *Machine) stopVideo(ctx context.Context, command string) channel.Outcome {
	if m.video == nil {
		return m.fail(ctx, command, telemetry.ErrInvalidCommandShape, "command requires a screen-kind zone")
	}
	return m.runOutcome(ctx, command, m.video.Stop(ctx))
}

