// Package devices defines the contract a light/relay device driver would
// implement. No command in the zone command surface targets a light or
// relay directly, so this package exists only as the contract point a
// real driver plugs into, plus a logging no-op.
package devices

import (
	"context"

	"github.com/rs/zerolog"
)

// Driver controls a single light/relay output.
type Driver interface {
	Set(ctx context.Context, channel string, on bool) error
}

// NoopDriver logs the requested state change without touching hardware.
// Used when a zone's configuration names no real driver.
type NoopDriver struct {
	logger zerolog.Logger
}

// NewNoopDriver returns a Driver that only logs.
func NewNoopDriver(logger zerolog.Logger) *NoopDriver {
	return &NoopDriver{logger: logger}
}

var _ Driver = (*NoopDriver)(nil)

func (d *NoopDriver) Set(_ context.Context, channel string, on bool) error {
	d.logger.Debug().Str("channel", channel).Bool("on", on).Msg("noop device driver")
	return nil
}
