package commands

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/cbuild/internal/engine"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Release bool `help:"Build with the release flag set"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	m, err := loadManifest(root)
	if err != nil {
		return err
	}

	eng := engine.New(m)
	res, err := eng.Build(g.Ctx, modeFor(b.Release))
	reportResult(res, err)
	if err != nil {
		return err
	}

	compiled, reused, _ := res.Counts()
	fmt.Printf("Finished %s build: %d compiled, %d reused (%s)\n",
		res.Mode, compiled, reused, res.Duration.Round(timeRounding))
	return nil
}

// reportResult prints every failed unit's diagnostics before the overall
// failure surfaces, so one pass shows all compile errors.
func reportResult(res *engine.BuildResult, err error) {
	if res == nil || err == nil {
		return
	}
	for _, failure := range res.Failures() {
		fmt.Fprintf(os.Stderr, "error: %s failed:\n%s", failure.Rel, failure.Output)
		if failure.Output != "" && failure.Output[len(failure.Output)-1] != '\n' {
			fmt.Fprintln(os.Stderr)
		}
	}
}
