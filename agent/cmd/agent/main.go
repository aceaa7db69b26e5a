package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdin).ExecuteContext(ctx); err != nil {
		slog.Error("insights-agent failed", "err", err)
		cancel()
		os.Exit(1)
	}
}
