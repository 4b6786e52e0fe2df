// Package zap adapts a [go.uber.org/zap] logger to the [logctx.Logger]
// interface.
package zap

import (
	"go.uber.org/zap"

	"github.com/creachadair/wasmjournal/logctx"
)

// Logger wraps a *zap.Logger to satisfy [logctx.Logger].
type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f logctx.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f logctx.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f logctx.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f logctx.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f logctx.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
