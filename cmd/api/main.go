package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docvault/internal/app"
	"github.com/markdave123-py/docvault/internal/config"
	"github.com/markdave123-py/docvault/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()
	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		logger.Error("startup failed: %v", err)
		os.Exit(1)
	}
	defer application.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Ingestor.Run(gctx, cfg.IngestWorkers)
	})
	g.Go(application.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		return application.Server.Shutdown(shutdownCtx)
	})

	logger.Info("docvault is running; %d ingest workers, store %s", cfg.IngestWorkers, cfg.DBDriver)
	if err := g.Wait(); err != nil {
		logger.Error("server stopped: %v", err)
	}
	logger.Info("shutting down")
}
