package commands

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/cbuild/internal/artifact"
	"git.home.luguber.info/inful/cbuild/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" default:"20" help:"Maximum number of builds to show"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	m, err := loadManifest(root)
	if err != nil {
		return err
	}

	store := artifact.Open(m.BuildDir())
	if _, err := os.Stat(store.HistoryPath()); err != nil {
		fmt.Println("No build history")
		return nil
	}

	hs, err := history.Open(store.HistoryPath())
	if err != nil {
		return err
	}
	defer hs.Close()

	records, err := hs.Recent(g.Ctx, h.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No build history")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %s  %-9s  %-9s  compiled=%d reused=%d failed=%d  %s\n",
			rec.ID[:8],
			rec.Started.Format("2006-01-02 15:04:05"),
			rec.Mode,
			rec.Status,
			rec.Compiled, rec.Reused, rec.Failed,
			rec.Duration.Round(timeRounding))
		if rec.Detail != "" {
			fmt.Printf("          %s\n", rec.Detail)
		}
	}
	return nil
}
