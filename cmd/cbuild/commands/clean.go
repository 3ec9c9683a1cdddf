package commands

import (
	"fmt"

	"git.home.luguber.info/inful/cbuild/internal/engine"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(_ *Global, root *CLI) error {
	m, err := loadManifest(root)
	if err != nil {
		return err
	}

	stats, err := engine.New(m).Clean()
	if err != nil {
		return err
	}
	if stats.Files == 0 {
		fmt.Println("Nothing to clean")
		return nil
	}
	fmt.Printf("Removed %d files, %.1fMiB total\n", stats.Files, float64(stats.Bytes)/(1024.0*1024.0))
	return nil
}
