package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/build-flow-labs/spof/internal/spof/cli"
	"github.com/build-flow-labs/spof/internal/spof/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.RootCmd.ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrInterrupted):
		os.Exit(130)
	default:
		os.Exit(1)
	}
}
