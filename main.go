package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/birdnet-pipeline/cmd"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
)

func main() {
	os.Exit(mainWithExitCode())
}

// mainWithExitCode runs the CLI and returns the process exit code, so
// deferred cleanup runs before os.Exit.
func mainWithExitCode() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer cmd.Shutdown()

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
