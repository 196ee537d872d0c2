package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nfrund/livedash/internal/config"
	"github.com/nfrund/livedash/internal/logging"
	"github.com/nfrund/livedash/internal/pubsub"
	"github.com/nfrund/livedash/internal/server"
)

// Runs the reference backend on its own; `livedash devserver` is the same
// server behind the CLI's flags.
func main() {
	logger := logging.New()

	cfg, err := config.New()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, cleanup, err := pubsub.SetupOTel(ctx, cfg.Tracing, "dev")
	if err != nil {
		logger.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create a new server instance.
	s, err := server.New(cfg, server.WithTracer(tracer))
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Start the server.
	if err := s.Run(ctx, cfg.DevServer.Addr); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
