package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/melih/lighthouse-verify/internal/cli"
)

func main() {
	// An interrupt cancels the context; the sandbox finishes tearing its
	// containers down before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
