package commands

import (
	"fmt"

	"git.home.luguber.info/inful/cbuild/internal/scaffold"
)

// NewCmd implements the 'new' command.
type NewCmd struct {
	Name string `arg:"" help:"Project directory to create"`
}

func (n *NewCmd) Run(_ *Global, _ *CLI) error {
	if err := scaffold.New(n.Name); err != nil {
		return err
	}
	fmt.Printf("Created project %s\n", n.Name)
	return nil
}
