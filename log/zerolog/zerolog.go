// Package zerolog adapts a zerolog.Logger to datacache.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/datacache"
)

var _ datacache.Logger = Logger{}

// Logger writes datacache events to L.
type Logger struct{ L zerolog.Logger }

// New tags every event with component=datacache.
func New(l zerolog.Logger) Logger {
	return Logger{L: l.With().Str("component", "datacache").Logger()}
}

func (z Logger) Debug(msg string, f datacache.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f datacache.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f datacache.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f datacache.Fields) { emit(z.L.Error(), msg, f) }

// emit is a no-op when the level is disabled (e is nil).
func emit(e *zerolog.Event, msg string, f datacache.Fields) {
	if e == nil {
		return
	}
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.Err(err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
