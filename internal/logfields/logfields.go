// Package logfields defines canonical log field name constants so field
// names do not drift between packages.
package logfields

import "log/slog"

const (
	KeyUnit       = "unit"
	KeyMode       = "mode"
	KeyPath       = "path"
	KeyObject     = "object"
	KeyPhase      = "phase"
	KeyDurationMS = "duration_ms"
	KeyBuildID    = "build_id"
	KeyCompiler   = "compiler"
	KeyWorkers    = "workers"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Unit(rel string) slog.Attr       { return slog.String(KeyUnit, rel) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Object(o string) slog.Attr       { return slog.String(KeyObject, o) }
func Phase(p string) slog.Attr        { return slog.String(KeyPhase, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Compiler(c string) slog.Attr     { return slog.String(KeyCompiler, c) }
func Workers(n int) slog.Attr         { return slog.Int(KeyWorkers, n) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
