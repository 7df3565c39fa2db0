package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := withContext(ctx, newRootCmd(), os.Args[1:]...); err != nil {
		stop()
		os.Exit(1)
	}
}
