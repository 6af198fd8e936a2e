// Command signaling-server runs the WebRTC signaling and room-coordination
// server: a WebSocket endpoint for join/leave/offer/answer/ice-candidate
// traffic plus a small HTTP surface for health, version, ICE configuration
// and metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/Nisarg284/cozy-discussions-hub/internal/config"
	"github.com/Nisarg284/cozy-discussions-hub/internal/httpserver"
	"github.com/Nisarg284/cozy-discussions-hub/internal/metrics"
	"github.com/Nisarg284/cozy-discussions-hub/internal/signaling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "signaling-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting signaling server",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"allowed_origins", cfg.AllowedOrigins,
		"ice_servers", len(cfg.ICEServers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	hub := signaling.NewHub(logger, m)
	go hub.Run(ctx)

	sig := signaling.NewServer(hub, logger, signaling.Config{
		AllowedOrigins:       cfg.AllowedOrigins,
		PingInterval:         cfg.PingInterval,
		PongWait:             cfg.PongWait,
		WriteWait:            cfg.WriteWait,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: int64(cfg.MaxMessagesPerSecond),
		SendQueueSize:        cfg.SendQueueSize,
	})

	srv := httpserver.New(cfg, logger, buildInfo())
	srv.Mux().Handle("GET /ws", sig)
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed, closing", "err", err)
		_ = srv.Close()
	}

	return nil
}

func buildInfo() httpserver.BuildInfo {
	build := httpserver.BuildInfo{Commit: "unknown", BuildTime: "unknown"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.Commit = setting.Value
		case "vcs.time":
			build.BuildTime = setting.Value
		}
	}
	return build
}
