// Package engine composes discovery, staleness analysis, compilation and
// linking into the build, run and clean operations exposed to the CLI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"git.home.luguber.info/inful/cbuild/internal/artifact"
	"git.home.luguber.info/inful/cbuild/internal/compiler"
	"git.home.luguber.info/inful/cbuild/internal/config"
	"git.home.luguber.info/inful/cbuild/internal/discovery"
	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
	"git.home.luguber.info/inful/cbuild/internal/history"
	"git.home.luguber.info/inful/cbuild/internal/linker"
	"git.home.luguber.info/inful/cbuild/internal/logfields"
	"git.home.luguber.info/inful/cbuild/internal/staleness"
)

// Phase names for the build pipeline. Transitions are sequential except
// Compiling, which fans out over the worker pool and fans back in before
// Linking.
const (
	PhaseIdle        = "idle"
	PhaseDiscovering = "discovering"
	PhasePlanning    = "planning"
	PhaseCompiling   = "compiling"
	PhaseLinking     = "linking"
	PhaseExecuting   = "executing"
	PhaseDone        = "done"
	PhaseFailed      = "failed"
)

// Recorder receives build telemetry. The zero implementation drops it.
type Recorder interface {
	ObserveBuild(outcome string, d time.Duration)
	IncUnitResult(status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBuild(string, time.Duration) {}
func (nopRecorder) IncUnitResult(string)               {}

// BuildResult is the per-invocation outcome returned to the CLI layer.
// It is never persisted; the history store keeps its own summary.
type BuildResult struct {
	BuildID    string
	Mode       string
	Phase      string
	Units      []compiler.UnitResult
	Linked     bool
	Executable string
	Duration   time.Duration
}

// Counts tallies unit outcomes.
func (r *BuildResult) Counts() (compiled, reused, failed int) {
	for _, u := range r.Units {
		switch u.Status {
		case compiler.StatusCompiled:
			compiled++
		case compiler.StatusReused:
			reused++
		case compiler.StatusFailed, compiler.StatusCanceled:
			failed++
		}
	}
	return
}

// Failures returns the failed unit results.
func (r *BuildResult) Failures() []compiler.UnitResult {
	var out []compiler.UnitResult
	for _, u := range r.Units {
		if u.Status == compiler.StatusFailed || u.Status == compiler.StatusCanceled {
			out = append(out, u)
		}
	}
	return out
}

// Engine is the build orchestrator for one project. All paths come from
// the manifest; the engine holds no ambient process-wide state, so
// multiple engines for different roots can coexist (and be tested)
// independently.
type Engine struct {
	manifest *config.Manifest
	store    *artifact.Store
	recorder Recorder

	// recordHistory toggles the SQLite build history. On by default;
	// tests that only care about pipeline behavior switch it off.
	recordHistory bool
}

// New creates an engine for a loaded manifest.
func New(m *config.Manifest) *Engine {
	return &Engine{
		manifest:      m,
		store:         artifact.Open(m.BuildDir()),
		recorder:      nopRecorder{},
		recordHistory: true,
	}
}

// WithRecorder sets a metrics recorder.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	if r != nil {
		e.recorder = r
	}
	return e
}

// WithoutHistory disables build history persistence.
func (e *Engine) WithoutHistory() *Engine {
	e.recordHistory = false
	return e
}

// Store exposes the artifact store (the clean path and tests use it).
func (e *Engine) Store() *artifact.Store { return e.store }

// Build runs the full pipeline for the given mode. The returned result is
// populated even when err is non-nil, so callers can report every failed
// unit's diagnostics before the overall failure.
func (e *Engine) Build(ctx context.Context, mode string) (*BuildResult, error) {
	start := time.Now()
	res := &BuildResult{
		BuildID: history.NewID(),
		Mode:    mode,
		Phase:   PhaseIdle,
	}

	err := e.build(ctx, mode, res)
	res.Duration = time.Since(start)

	outcome := "succeeded"
	if err != nil {
		res.Phase = PhaseFailed
		outcome = "failed"
	}
	e.recorder.ObserveBuild(outcome, res.Duration)
	for _, u := range res.Units {
		e.recorder.IncUnitResult(u.Status)
	}
	e.appendHistory(ctx, res, err)

	return res, err
}

func (e *Engine) build(ctx context.Context, mode string, res *BuildResult) error {
	if _, ok := e.manifest.Build.Modes[mode]; !ok {
		return cberrors.New(cberrors.CategoryConfig, cberrors.SeverityFatal, "unknown build mode").
			WithContext("mode", mode)
	}
	if info, err := os.Stat(e.manifest.IncludeDir()); err != nil || !info.IsDir() {
		return cberrors.MissingDirectory("include", e.manifest.IncludeDir())
	}

	// Discovering
	res.Phase = PhaseDiscovering
	scanner := discovery.NewScanner(e.manifest.SourceDir(),
		e.manifest.IncludeDir(), e.manifest.PrivateIncludeDir())
	units, err := scanner.Scan()
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return cberrors.New(cberrors.CategoryDiscovery, cberrors.SeverityFatal, "no source files found").
			WithContext("dir", e.manifest.SourceDir())
	}
	slog.Debug("Discovery complete", slog.Int("units", len(units)))

	if err := e.store.EnsureLayout(); err != nil {
		return err
	}

	// Planning
	res.Phase = PhasePlanning
	plan := staleness.Analyze(units, e.store, mode)
	stale := plan.Stale()
	slog.Info("Build plan ready",
		logfields.Mode(mode),
		slog.Int("stale", len(stale)),
		slog.Int("fresh", len(plan.Decisions)-len(stale)))

	// Compiling
	res.Phase = PhaseCompiling
	driver := compiler.NewDriver(e.store, e.manifest.Build.Compiler, mode,
		e.manifest.FlagsFor(mode), e.includeDirs(), e.manifest.Workers())
	compiled, err := driver.CompileAll(ctx, stale)
	if err != nil {
		return err
	}
	res.Units = e.mergeResults(plan, compiled)

	// The index gains every completed compile even when siblings failed:
	// their objects are current and must survive for the next run.
	if err := e.store.Flush(); err != nil {
		return err
	}

	if _, _, failed := res.Counts(); failed > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cberrors.New(cberrors.CategoryCompile, cberrors.SeverityFatal, "compilation failed").
			WithContext("failed_units", failed)
	}

	// Linking
	res.Executable = e.store.ExecutablePath(e.manifest.Project.Name)
	anyCompiled := len(stale) > 0
	if _, err := os.Stat(res.Executable); err != nil {
		anyCompiled = true // executable missing, must link
	}
	if anyCompiled {
		res.Phase = PhaseLinking
		link := linker.NewDriver(e.manifest.Build.Compiler, nil)
		if err := link.Link(ctx, plan.Objects(), res.Executable); err != nil {
			return err
		}
		res.Linked = true
	} else {
		slog.Debug("Executable up to date, skipping link", logfields.Path(res.Executable))
	}

	res.Phase = PhaseDone
	return nil
}

// includeDirs returns the -I search paths in invocation order.
func (e *Engine) includeDirs() []string {
	return []string{e.manifest.IncludeDir(), e.manifest.PrivateIncludeDir()}
}

// mergeResults combines compile outcomes with reused decisions, keeping
// plan order for the reused portion.
func (e *Engine) mergeResults(plan *staleness.Plan, compiled []compiler.UnitResult) []compiler.UnitResult {
	byRel := make(map[string]compiler.UnitResult, len(compiled))
	for _, r := range compiled {
		byRel[r.Rel] = r
	}

	out := make([]compiler.UnitResult, 0, len(plan.Decisions))
	for _, d := range plan.Decisions {
		if r, ok := byRel[d.Unit.Rel]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, compiler.UnitResult{
			Rel:    d.Unit.Rel,
			Object: d.Object,
			Status: compiler.StatusReused,
		})
	}
	return out
}

// Run builds, then executes the linked artifact with inherited stdio and
// returns its exit code.
func (e *Engine) Run(ctx context.Context, mode string, args []string) (*BuildResult, int, error) {
	res, err := e.Build(ctx, mode)
	if err != nil {
		return res, -1, err
	}

	res.Phase = PhaseExecuting
	slog.Debug("Executing", logfields.Path(res.Executable))

	cmd := exec.CommandContext(ctx, res.Executable, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = e.manifest.Root

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, exitErr.ExitCode(), nil
		}
		return res, -1, cberrors.Wrap(err, cberrors.CategoryInternal, cberrors.SeverityFatal, "failed to execute project")
	}
	return res, 0, nil
}

// Clean removes the build directory. A missing directory is a no-op
// success.
func (e *Engine) Clean() (artifact.ClearStats, error) {
	return e.store.Clear()
}

// appendHistory records the build outcome, best effort.
func (e *Engine) appendHistory(ctx context.Context, res *BuildResult, buildErr error) {
	if !e.recordHistory {
		return
	}
	// The build dir may be gone (failed before layout); don't create it
	// just for history.
	if _, err := os.Stat(e.store.BuildDir()); err != nil {
		return
	}

	store, err := history.Open(e.store.HistoryPath())
	if err != nil {
		slog.Warn("Failed to open build history", logfields.Error(err))
		return
	}
	defer store.Close()

	compiled, reused, failed := res.Counts()
	rec := history.BuildRecord{
		ID:       res.BuildID,
		Mode:     res.Mode,
		Status:   "succeeded",
		Started:  time.Now().Add(-res.Duration),
		Duration: res.Duration,
		Compiled: compiled,
		Reused:   reused,
		Failed:   failed,
	}
	if buildErr != nil {
		rec.Status = "failed"
		rec.Detail = fmt.Sprintf("%.200s", buildErr.Error())
	}
	if err := store.Append(ctx, rec); err != nil {
		slog.Warn("Failed to record build history", logfields.Error(err))
	}
}
