// Package telemetry defines the OutcomeEvent, recompute, and status
// schemas published to a zone's topics, and the closed ErrorKind
// vocabulary error handling is built on.
package telemetry

import (
	"context"
	"time"
)

// ErrorKind is the closed set of warning/failure classifications an
// OutcomeEvent's warning_type or message may report.
type ErrorKind string

const (
	ErrMalformedJSON         ErrorKind = "malformed_json"
	ErrInvalidCommandShape   ErrorKind = "invalid_command_structure"
	ErrUnknownCommand        ErrorKind = "unknown_command"
	ErrInvalidParameters     ErrorKind = "invalid_parameters"
	ErrFileNotFound          ErrorKind = "file_not_found"
	ErrPlayerLoadFailed      ErrorKind = "player_load_failed"
	ErrPlayerSpawnFailed     ErrorKind = "player_spawn_failed"
	ErrPlayerIPCTimeout      ErrorKind = "player_ipc_timeout"
	ErrCommandTimeout        ErrorKind = "command_timeout"
	ErrVolumeResolutionWarn  ErrorKind = "volume_resolution_warning"
	ErrDuplicateIgnored      ErrorKind = "duplicate_ignored"
	ErrQueueOverflowDropped  ErrorKind = "queue_overflow_dropped"
	ErrInvalidZoneModel      ErrorKind = "invalid_zone_model"
	ErrTransportDisconnected ErrorKind = "transport_disconnected"
)

// Outcome is the terminal disposition of a dispatched command.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeWarning Outcome = "warning"
	OutcomeFailure Outcome = "failure"
)

// Parameters carries the command-specific fields an OutcomeEvent reports.
// Fields are omitted from the wire payload when not applicable to the
// command that produced the event.
type Parameters struct {
	File            string   `json:"file,omitempty"`
	Volume          *int     `json:"volume,omitempty"`
	AdjustVolume    *int     `json:"adjustVolume,omitempty"`
	EffectiveVolume *int     `json:"effective_volume,omitempty"`
	PreDuckVolume   *int     `json:"pre_duck_volume,omitempty"`
	Ducked          *bool    `json:"ducked,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// OutcomeEvent is the event emitted on every dispatched command.
type OutcomeEvent struct {
	Timestamp   time.Time  `json:"timestamp"`
	Zone        string     `json:"zone"`
	Type        string     `json:"type"`
	Command     string     `json:"command"`
	Outcome     Outcome    `json:"outcome"`
	Parameters  Parameters `json:"parameters"`
	Message     string     `json:"message,omitempty"`
	WarningType ErrorKind  `json:"warning_type,omitempty"`
}

// RecomputeEvent is emitted whenever a duck lifecycle edge changes a
// zone's applied background volume.
type RecomputeEvent struct {
	Timestamp                  time.Time `json:"timestamp"`
	Zone                       string    `json:"zone"`
	Type                       string    `json:"type"`
	BackgroundVolumeRecomputed bool      `json:"background_volume_recomputed"`
	EffectiveVolume            int       `json:"effective_volume"`
	PreDuckVolume              int       `json:"pre_duck_volume"`
	Ducked                     bool      `json:"ducked"`
}

// BackgroundStatus is the background-channel portion of a zone status
// snapshot.
type BackgroundStatus struct {
	Playing         bool   `json:"playing"`
	File            string `json:"file,omitempty"`
	PreDuckVolume   int    `json:"pre_duck_volume"`
	EffectiveVolume int    `json:"effective_volume"`
	Ducked          bool   `json:"ducked"`
	Loop            bool   `json:"loop"`
}

// StatusEvent is the zone state snapshot published to a zone's status
// topic whenever the zone's status changes and in reply to getStatus.
type StatusEvent struct {
	Timestamp        time.Time        `json:"timestamp"`
	Zone             string           `json:"zone"`
	Type             string           `json:"type"`
	Status           string           `json:"status"`
	Background       BackgroundStatus `json:"background"`
	SpeechPlaying    string           `json:"speech_playing,omitempty"`
	SpeechQueueDepth int              `json:"speech_queue_depth"`
	VideoFile        string           `json:"video_file,omitempty"`
	VideoQueueDepth  int              `json:"video_queue_depth,omitempty"`
	DuckTriggers     int              `json:"duck_triggers"`
	LastCommand      string           `json:"last_command,omitempty"`
}

// Sink is the narrow publishing capability channels and zones depend on.
// Passed explicitly by the zone to its channels rather than a back-
// pointer to the zone itself, keeping the dependency one-way.
type Sink interface {
	Outcome(ctx context.Context, event OutcomeEvent) error
	Recompute(ctx context.Context, event RecomputeEvent) error
	Status(ctx context.Context, event StatusEvent) error
}

// NewOutcomeEvent fills the required constant fields of an OutcomeEvent.
func NewOutcomeEvent(now time.Time, zone, command string, outcome Outcome) OutcomeEvent {
	return OutcomeEvent{
		Timestamp: now.UTC(),
		Zone:      zone,
		Type:      "events",
		Command:   command,
		Outcome:   outcome,
	}
}

// NewStatusEvent fills the required constant fields of a StatusEvent.
func NewStatusEvent(now time.Time, zone, status string) StatusEvent {
	return StatusEvent{
		Timestamp: now.UTC(),
		Zone:      zone,
		Type:      "status",
		Status:    status,
	}
}

// NewRecomputeEvent fills the required constant fields of a RecomputeEvent.
func NewRecomputeEvent(now time.Time, zone string, effectiveVolume, preDuckVolume int, ducked bool) RecomputeEvent {
	return RecomputeEvent{
		Timestamp:                  now.UTC(),
		Zone:                       zone,
		Type:                       "events",
		BackgroundVolumeRecomputed: true,
		EffectiveVolume:            effectiveVolume,
		PreDuckVolume:              preDuckVolume,
		Ducked:                     ducked,
	}
}
