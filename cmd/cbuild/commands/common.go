package commands

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/cbuild/internal/config"
)

// Global carries cross-command state into subcommand Run methods.
type Global struct {
	Ctx context.Context
}

// CLI definition & global flags.
type CLI struct {
	Manifest string           `short:"m" help:"Manifest file path" default:"cbuild.yaml"`
	Verbose  bool             `short:"v" help:"Enable verbose logging"`
	Version  kong.VersionFlag `name:"version" help:"Show version and exit"`

	New     NewCmd     `cmd:"" help:"Create a new C project"`
	Build   BuildCmd   `cmd:"" aliases:"b" help:"Build the project"`
	Run     RunCmd     `cmd:"" aliases:"r" help:"Build and run the project"`
	Clean   CleanCmd   `cmd:"" help:"Remove the build directory"`
	Watch   WatchCmd   `cmd:"" help:"Rebuild automatically when sources change"`
	History HistoryCmd `cmd:"" help:"Show recent builds"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(c.Verbose),
	}))
	slog.SetDefault(logger)
	return nil
}

// parseLogLevel resolves the log level from the verbose flag and the
// CBUILD_LOG_LEVEL environment variable (flag wins).
func parseLogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(os.Getenv("CBUILD_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadManifest loads the manifest named by the root flags.
func loadManifest(root *CLI) (*config.Manifest, error) {
	return config.Load(root.Manifest)
}

// modeFor maps the --release flag to a build mode name.
func modeFor(release bool) string {
	if release {
		return config.ModeRelease
	}
	return config.ModeDebug
}
