package commands

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/cbuild/internal/engine"
	"git.home.luguber.info/inful/cbuild/internal/logfields"
	"git.home.luguber.info/inful/cbuild/internal/metrics"
	"git.home.luguber.info/inful/cbuild/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Release     bool   `help:"Build with the release flag set"`
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address (e.g. :9090)"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	m, err := loadManifest(root)
	if err != nil {
		return err
	}

	eng := engine.New(m)
	if w.MetricsAddr != "" {
		recorder := metrics.NewPrometheusRecorder()
		eng.WithRecorder(recorder)
		go func() {
			slog.Info("Serving metrics", slog.String("addr", w.MetricsAddr))
			if err := recorder.Serve(w.MetricsAddr); err != nil {
				slog.Error("Metrics server stopped", logfields.Error(err))
			}
		}()
	}

	mode := modeFor(w.Release)
	rebuild := func(ctx context.Context) {
		res, err := eng.Build(ctx, mode)
		reportResult(res, err)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Build failed", logfields.Error(err))
			}
			return
		}
		compiled, reused, _ := res.Counts()
		fmt.Printf("Finished %s build: %d compiled, %d reused (%s)\n",
			res.Mode, compiled, reused, res.Duration.Round(timeRounding))
	}

	// Build once up front so the watcher starts from a consistent state.
	rebuild(g.Ctx)
	if g.Ctx.Err() != nil {
		return nil
	}

	watcher, err := watch.New(m.BuildDir(), m.SourceDir(), m.IncludeDir())
	if err != nil {
		return err
	}
	return watcher.Run(g.Ctx, rebuild)
}
