// Package compiler invokes the external C compiler once per stale source
// unit, fanning out across a bounded worker pool.
package compiler

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/cbuild/internal/artifact"
	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
	"git.home.luguber.info/inful/cbuild/internal/logfields"
	"git.home.luguber.info/inful/cbuild/internal/staleness"
)

// Unit outcome statuses.
const (
	StatusCompiled = "compiled"
	StatusReused   = "reused"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// UnitResult is the outcome of one compiler invocation (or reuse).
type UnitResult struct {
	Rel      string
	Object   string
	Status   string
	Output   string // captured stdout+stderr, complete per unit
	Err      error
	Duration time.Duration
}

// Driver runs compile invocations. The external compiler is treated as an
// opaque process: the driver only constructs argument lists and inspects
// exit status and captured output.
type Driver struct {
	Compiler    string
	Flags       []string
	IncludeDirs []string
	Workers     int
	Mode        string

	store *artifact.Store
}

// NewDriver creates a driver that promotes successful compiles into the
// given artifact store.
func NewDriver(store *artifact.Store, compiler, mode string, flags, includeDirs []string, workers int) *Driver {
	return &Driver{
		Compiler:    compiler,
		Flags:       flags,
		IncludeDirs: includeDirs,
		Workers:     workers,
		Mode:        mode,
		store:       store,
	}
}

// CompileAll compiles every stale decision. A unit's failure is recorded
// with its diagnostics and does not cancel siblings; all units attempt
// compilation so a single pass surfaces every error. Results come back in
// completion order. Cancellation of ctx terminates in-flight compiler
// processes; their partial objects are deleted and never promoted.
func (d *Driver) CompileAll(ctx context.Context, stale []staleness.Decision) ([]UnitResult, error) {
	if len(stale) == 0 {
		return nil, nil
	}

	if _, err := exec.LookPath(d.Compiler); err != nil {
		return nil, cberrors.New(cberrors.CategoryConfig, cberrors.SeverityFatal, "compiler not found").
			WithContext("compiler", d.Compiler)
	}

	workers := d.Workers
	if workers > len(stale) {
		workers = len(stale)
	}
	if workers < 1 {
		workers = 1
	}
	slog.Debug("Starting compile phase", logfields.Compiler(d.Compiler), logfields.Workers(workers), slog.Int("stale", len(stale)))

	tasks := make(chan staleness.Decision)
	results := make([]UnitResult, 0, len(stale))
	var wg sync.WaitGroup
	var mu sync.Mutex

	worker := func() {
		defer wg.Done()
		for task := range tasks {
			res := d.compileOne(ctx, task)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}
	for _, task := range stale {
		tasks <- task
	}
	close(tasks)
	wg.Wait()

	return results, nil
}

// compileOne runs a single compiler invocation.
func (d *Driver) compileOne(ctx context.Context, task staleness.Decision) UnitResult {
	res := UnitResult{Rel: task.Unit.Rel, Object: task.Object}

	select {
	case <-ctx.Done():
		res.Status = StatusCanceled
		res.Err = ctx.Err()
		return res
	default:
	}

	if err := os.MkdirAll(filepath.Dir(task.Object), 0o755); err != nil {
		res.Status = StatusFailed
		res.Err = cberrors.StoreError("create object dir", err)
		return res
	}

	args := []string{"-c", task.Unit.Path, "-o", task.Object}
	for _, dir := range d.IncludeDirs {
		args = append(args, "-I", dir)
	}
	args = append(args, d.Flags...)

	cmd := exec.CommandContext(ctx, d.Compiler, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Output = output.String()

	if err != nil {
		// Never leave a partially written object behind; the next run
		// must see this unit as stale.
		_ = os.Remove(task.Object)
		if ctx.Err() != nil {
			res.Status = StatusCanceled
			res.Err = ctx.Err()
			slog.Debug("Compile canceled", logfields.Unit(task.Unit.Rel))
			return res
		}
		res.Status = StatusFailed
		res.Err = cberrors.CompileFailed(task.Unit.Rel, res.Output, err)
		slog.Debug("Compile failed", logfields.Unit(task.Unit.Rel), logfields.DurationMS(float64(res.Duration.Milliseconds())))
		return res
	}

	res.Status = StatusCompiled
	d.store.Update(task.Unit.Rel, artifact.Record{
		Object:  task.Object,
		BuiltAt: time.Now(),
		Mode:    d.Mode,
	})
	slog.Debug("Compiled",
		logfields.Unit(task.Unit.Rel),
		logfields.Object(task.Object),
		slog.String("reason", task.Reason),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res
}
