// Package zap adapts a *zap.Logger to datacache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/datacache"
)

var _ datacache.Logger = Logger{}

// Logger writes datacache events to L. Field keys are emitted in sorted
// order; an "err" field holding an error becomes zap.Error.
type Logger struct{ L *zap.Logger }

// New names the logger "datacache".
func New(l *zap.Logger) Logger { return Logger{L: l.Named("datacache")} }

func (z Logger) Debug(msg string, f datacache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f datacache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f datacache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f datacache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f datacache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
