package errors

import "strings"

// Convenience functions for common error patterns

// Config errors

func ManifestNotFound(path string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "manifest file not found").
		WithContext("path", path)
}

func MissingDirectory(kind, path string) *BuildError {
	return New(CategoryConfig, SeverityFatal, kind+" directory does not exist").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "manifest validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Pipeline errors

func DiscoveryFailed(cause error) *BuildError {
	return Wrap(cause, CategoryDiscovery, SeverityFatal, "source discovery failed")
}

func UnreadableSource(path string, cause error) *BuildError {
	return Wrap(cause, CategoryDiscovery, SeverityError, "source file unreadable").
		WithContext("path", path)
}

// CompileFailed carries the compiler's diagnostic output for one unit.
// It is non-fatal to sibling compilations.
func CompileFailed(unit, diagnostics string, cause error) *BuildError {
	return Wrap(cause, CategoryCompile, SeverityError, withDiagnostics("compilation failed", diagnostics)).
		WithContext("unit", unit)
}

func LinkFailed(diagnostics string, cause error) *BuildError {
	return Wrap(cause, CategoryLink, SeverityFatal, withDiagnostics("link failed", diagnostics))
}

// withDiagnostics folds captured tool output into the message so it
// survives to user-facing error rendering.
func withDiagnostics(msg, diagnostics string) string {
	if d := strings.TrimSpace(diagnostics); d != "" {
		return msg + ":\n" + d
	}
	return msg
}

// Infrastructure errors

func StoreError(operation string, cause error) *BuildError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "artifact store operation failed").
		WithContext("operation", operation)
}
