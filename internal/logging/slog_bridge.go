package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// zerologHandler adapts the package's zerolog logger to the slog.Handler
// interface, the same bridging pattern used for Watermill's logger
// interface in internal/transport (wmLoggerAdapter): third-party libraries
// that insist on their own logging interface get a thin adapter rather than
// a second logging stack.
type zerologHandler struct {
	logger zerolog.Logger
}

// SlogLogger returns an *slog.Logger backed by the global zerolog logger,
// for libraries (sutureslog) that only accept slog.
func SlogLogger() *slog.Logger {
	return slog.New(&zerologHandler{logger: Logger()})
}

func (h *zerologHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	var evt *zerolog.Event
	switch {
	case r.Level >= slog.LevelError:
		evt = h.logger.Error()
	case r.Level >= slog.LevelWarn:
		evt = h.logger.Warn()
	case r.Level >= slog.LevelInfo:
		evt = h.logger.Info()
	default:
		evt = h.logger.Debug()
	}
	r.Attrs(func(a slog.Attr) bool {
		evt = evt.Interface(a.Key, a.Value.Any())
		return true
	})
	evt.Msg(r.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	ctx := h.logger.With()
	for _, a := range attrs {
		ctx = ctx.Interface(a.Key, a.Value.Any())
	}
	return &zerologHandler{logger: ctx.Logger()}
}

// WithGroup is unsupported: attribute groups are flattened onto the
// underlying zerolog event instead of nested, since sutureslog never nests.
func (h *zerologHandler) WithGroup(_ string) slog.Handler {
	return h
}
