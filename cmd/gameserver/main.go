// Package main implements the pitch multiplayer game server.
//
// Architecture Overview:
//   - Clients connect over WebSocket and exchange JSON {"event","data"} frames
//   - One process-wide scheduler steps every room at 60Hz and runs the match
//     clocks at 1Hz
//   - Running matches are optionally mirrored to NATS at 30Hz and room
//     occupancy to Redis
//
// Connection Flow:
//  1. Client connects to /ws, optionally with ?roomId=<name>
//  2. Server places it in that room (or any room with space) and sends
//     roomAssigned and init
//  3. Client sends input and requestRestart events; the room broadcasts
//     updates, goals, timer and match lifecycle events
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/pitch/server/config"
	"github.com/pitch/server/internal/directory"
	"github.com/pitch/server/internal/matchmaker"
	"github.com/pitch/server/internal/mirror"
	"github.com/pitch/server/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mmOpts := []matchmaker.Option{matchmaker.WithLogger(logger)}
	if cfg.RedisURL != "" {
		client, err := directory.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		mmOpts = append(mmOpts, matchmaker.WithDirectory(
			directory.New(client, directory.WithLogger(logger))))
		logger.Info("room directory enabled")
	}
	mm := matchmaker.NewMatchmaker(cfg.Game, mmOpts...)

	schedOpts := []scheduler.Option{scheduler.WithLogger(logger)}
	if cfg.NATSURL != "" {
		pub, err := mirror.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		schedOpts = append(schedOpts, scheduler.WithMirror(mirror.New(pub, cfg.MirrorSubject)))
		logger.Info("state mirror enabled", "subject", cfg.MirrorSubject)
	}
	sched := scheduler.New(mm, schedOpts...)

	gin.SetMode(gin.ReleaseMode)
	srv := NewGameServer(cfg, mm, logger)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     srv.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	logger.Info("game server starting",
		"addr", httpServer.Addr,
		"physics_hz", config.PhysicsTickRate,
		"max_players_per_room", cfg.Game.MaxPlayersPerRoom,
		"max_rooms", cfg.Game.MaxRooms,
		"match_duration", cfg.Game.MatchDuration)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })

	g.Go(func() error {
		srv.runMaintenance(gctx)
		return nil
	})

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		srv.CloseAll()
		mm.Stop()
		return err
	})

	return g.Wait()
}

// setupLogger builds the process logger from a level and a format
// ("text" or "json").
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
