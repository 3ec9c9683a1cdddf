package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/cbuild/cmd/cbuild/commands"
	"git.home.luguber.info/inful/cbuild/internal/version"
)

func main() {
	// Interrupt terminates in-flight compiler processes via context
	// cancellation; partially written objects are discarded by the
	// compile driver, never promoted into the artifact index.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli commands.CLI
	kctx := kong.Parse(&cli,
		kong.Name("cbuild"),
		kong.Description("A build tool for C projects"),
		kong.Vars{"version": version.Version},
	)

	if err := kctx.Run(&commands.Global{Ctx: ctx}, &cli); err != nil {
		cancel()
		// A nonzero exit of the project executable is not a cbuild error;
		// it just becomes our exit code.
		var exitErr *commands.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		kctx.Errorf("%v", err)
		os.Exit(1)
	}
}
