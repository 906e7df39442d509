// SkyTrack Web Server
// Serves the map page and provides REST API + WebSocket endpoints
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/skytrack/internal/app"
	"github.com/unklstewy/skytrack/internal/logging"
	"github.com/unklstewy/skytrack/pkg/config"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
	openPage   = flag.Bool("open", false, "Open the map page in the default browser")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	// Log to the rotating file and to stderr
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	lg := logging.New(cfg.Logging.Level, cfg.Logging.Dir, "web-server",
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	defer lg.Close()
	logger := lg.Logger

	logger.Info("starting SkyTrack web server", "log_file", lg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	srv := NewServer(ctx, ServerConfig{
		Config:    cfg,
		Ctrl:      svc.Controller,
		Locator:   svc.Resolver,
		Database:  svc.DB,
		Sightings: svc.Sightings,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return svc.RunCleanup(gctx)
	})

	if *openPage {
		url := pageURL(cfg.Server.Host, cfg.Server.Port)
		if err := browser.OpenURL(url); err != nil {
			logger.Warn("could not open browser", "url", url, "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// pageURL is where a local browser reaches the server.
func pageURL(host, port string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}
