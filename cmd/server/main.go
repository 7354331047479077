// Package main is the entry point for the storefront auth server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment variables and an optional .env file)
// 2. Create the logger
// 3. Build the server and start it
//
// All actual logic lives in imported packages (internal/server,
// internal/service, internal/handler, etc.).
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/danigit7/E-commerce/internal/config"
	"github.com/danigit7/E-commerce/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.Load reads .env (if present) and then the environment. It
	// validates everything up front, so a missing JWT secret stops us here
	// instead of on the first login.
	cfg, err := config.Load()
	if err != nil {
		// No configured logger yet; the default one writes to stderr.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Human-readable text in development, JSON (one object per line, easy for
	// log shippers to parse) in production. Level comes from LOG_LEVEL.
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var logHandler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(logHandler)
	// Packages that log through slog's package-level functions (the JSON
	// response helpers) get the same handler.
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// The sqlite file's directory is created if needed (like `mkdir -p`).
	// Skipped for mongo and for the in-memory database.
	if cfg.MongoURI == "" && cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	// Connecting to mongo and Redis is bounded so a wrong URL fails fast.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
