package commands

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/cbuild/internal/engine"
)

const timeRounding = time.Millisecond

// ExitCodeError carries the project executable's nonzero exit status up to
// main, which maps it to the process exit code after kong unwinds.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// RunCmd implements the 'run' command.
type RunCmd struct {
	Release bool     `help:"Build with the release flag set"`
	Args    []string `arg:"" optional:"" passthrough:"" help:"Arguments passed to the project executable"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	m, err := loadManifest(root)
	if err != nil {
		return err
	}

	eng := engine.New(m)
	res, code, err := eng.Run(g.Ctx, modeFor(r.Release), r.Args)
	reportResult(res, err)
	if err != nil {
		return err
	}

	// The project's exit code becomes ours.
	if code != 0 {
		return &ExitCodeError{Code: code}
	}
	return nil
}
