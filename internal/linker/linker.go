// Package linker performs the final link of all current objects into the
// project executable.
package linker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
	"git.home.luguber.info/inful/cbuild/internal/logfields"
)

// Driver runs the link invocation. Like the compiler, the linker is an
// opaque external process; only exit status and captured output are
// inspected.
type Driver struct {
	Linker string
	Flags  []string
}

// NewDriver creates a link driver. The C compiler front end doubles as the
// link driver, as in any cc-based toolchain.
func NewDriver(linker string, flags []string) *Driver {
	return &Driver{Linker: linker, Flags: flags}
}

// Link combines the given objects into an executable at target. The link
// writes to a temporary path in the target's directory and renames into
// place only on success, so a failed link leaves any previous executable
// untouched.
func (d *Driver) Link(ctx context.Context, objects []string, target string) error {
	if len(objects) == 0 {
		return cberrors.New(cberrors.CategoryLink, cberrors.SeverityFatal, "no objects to link")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return cberrors.StoreError("create bin dir", err)
	}

	tmp := filepath.Join(filepath.Dir(target), fmt.Sprintf(".%s.tmp-%d", filepath.Base(target), os.Getpid()))
	defer os.Remove(tmp)

	args := []string{"-o", tmp}
	args = append(args, objects...)
	args = append(args, d.Flags...)

	cmd := exec.CommandContext(ctx, d.Linker, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cberrors.LinkFailed(output.String(), err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return cberrors.StoreError("promote executable", err)
	}

	slog.Debug("Linked",
		logfields.Path(target),
		slog.Int("objects", len(objects)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}
