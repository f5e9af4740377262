// Package supervisor builds the process supervision tree for ParadoxFX
// using suture v4. The root supervisor carries the always-on router
// directly, with one child supervisor per zone kind (audio-zones,
// screen-zones) so a wedged screen zone's restarts never affect audio
// zones and vice versa.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64
	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own production defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// SupervisorTree manages ParadoxFX's three-layer supervision structure:
//
//	root ("paradoxfx")
//	├── router (always-on, added directly to root)
//	├── audio-zones
//	│   └── one ZoneStateMachine per audio zone
//	└── screen-zones
//	    └── one ZoneStateMachine per screen zone
type SupervisorTree struct {
	root        *suture.Supervisor
	audioZones  *suture.Supervisor
	screenZones *suture.Supervisor
	config      TreeConfig
}

// NewSupervisorTree constructs the tree, wiring logger through sutureslog
// for event-level observability (service start/stop/crash/backoff).
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) *SupervisorTree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("paradoxfx", rootSpec)
	audioZones := suture.New("audio-zones", childSpec)
	screenZones := suture.New("screen-zones", childSpec)

	root.Add(audioZones)
	root.Add(screenZones)

	return &SupervisorTree{
		root:        root,
		audioZones:  audioZones,
		screenZones: screenZones,
		config:      config,
	}
}

// Root returns the root supervisor for direct access (used to add the
// always-on router service).
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddRouter adds the router service directly to the root supervisor: it is
// always-on and isolated from zone-kind restarts.
func (t *SupervisorTree) AddRouter(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// AddAudioZone adds a ZoneStateMachine to the audio-zones child supervisor.
func (t *SupervisorTree) AddAudioZone(svc suture.Service) suture.ServiceToken {
	return t.audioZones.Add(svc)
}

// AddScreenZone adds a ZoneStateMachine to the screen-zones child
// supervisor.
func (t *SupervisorTree) AddScreenZone(svc suture.Service) suture.ServiceToken {
	return t.screenZones.Add(svc)
}

// Serve starts the supervisor tree and blocks until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a background goroutine, returning a
// channel that receives the terminal error (or nil) once it stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport reports services that failed to stop within the
// configured shutdown timeout, for diagnosing a hung shutdown.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
