// Command clipper serves a media library over HTTP: filesystem scanning
// and reconciliation, thumbnails, duplicate detection, face identities,
// streaming, and background editing/download jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipperhq/clipper/internal/config"
	"github.com/clipperhq/clipper/internal/events"
	"github.com/clipperhq/clipper/internal/logger"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
	"github.com/clipperhq/clipper/internal/modules/rootmodule"
	"github.com/clipperhq/clipper/internal/server"

	// Modules self-register from init().
	_ "github.com/clipperhq/clipper/internal/modules/eventsmodule"
	_ "github.com/clipperhq/clipper/internal/modules/facemodule"
	_ "github.com/clipperhq/clipper/internal/modules/fingerprintmodule"
	_ "github.com/clipperhq/clipper/internal/modules/jobsmodule"
	_ "github.com/clipperhq/clipper/internal/modules/mediamodule"
	_ "github.com/clipperhq/clipper/internal/modules/playbackmodule"
	_ "github.com/clipperhq/clipper/internal/modules/scannermodule"
	_ "github.com/clipperhq/clipper/internal/modules/thumbnailmodule"

	"github.com/clipperhq/clipper/internal/database"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		logger.Error("Fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()

	events.SetGlobalEventBus(events.NewBus())

	if err := rootmodule.GetManager().Bootstrap(); err != nil {
		return err
	}

	if err := modulemanager.LoadAll(database.GetDB()); err != nil {
		return err
	}

	srv := server.New(cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Warn("HTTP shutdown: %v", err)
	}
	modulemanager.Shutdown(ctx)
	if err := database.Close(); err != nil {
		logger.Warn("Catalog close: %v", err)
	}
	return nil
}
