// Command voxhound is the main entry point for the Voxhound soundboard bot.
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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxhound/voxhound/internal/config"
	discordbot "github.com/voxhound/voxhound/internal/discord"
	"github.com/voxhound/voxhound/internal/discord/commands"
	"github.com/voxhound/voxhound/internal/health"
	"github.com/voxhound/voxhound/internal/observe"
	"github.com/voxhound/voxhound/internal/session"
	"github.com/voxhound/voxhound/internal/store"
	discordaudio "github.com/voxhound/voxhound/pkg/audio/discord"
	"github.com/voxhound/voxhound/pkg/recognizer/vosk"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxhound: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxhound: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxhound starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxhound",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}

	// ── Sound catalog store ───────────────────────────────────────────────────
	var (
		catalogStore store.Store
		pg           *store.Postgres
	)
	if cfg.Database.PostgresDSN != "" {
		pg, err = store.NewPostgres(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to database", "err", err)
			return 1
		}
		catalogStore = pg
		slog.Info("sound catalog store ready", "backend", "postgres")
	} else {
		catalogStore = store.NewMemStore()
		slog.Warn("sound catalog store ready", "backend", "memory")
	}

	// ── Clip directory ────────────────────────────────────────────────────────
	if err := os.MkdirAll(cfg.Sounds.ClipDir, 0o755); err != nil {
		slog.Error("failed to create clip directory", "dir", cfg.Sounds.ClipDir, "err", err)
		return 1
	}

	// ── Speech recognition engine ─────────────────────────────────────────────
	engine, err := vosk.NewEngine(cfg.ModelPaths())
	if err != nil {
		slog.Error("failed to load speech models", "err", err)
		return 1
	}
	slog.Info("speech models loaded", "languages", engine.Languages())

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(cfg.Discord)
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}

	transport := discordaudio.New(bot.Session())
	ctrl := session.NewController(session.Config{
		Transport: transport,
		Store:     catalogStore,
		Engine:    engine,
		Occupancy: bot,
		ClipDir:   cfg.Sounds.ClipDir,
	})
	bot.OnVoiceState(ctrl.HandleVoiceState)

	commands.NewVoiceCommands(bot, ctrl)
	commands.NewSoundCommands(bot, catalogStore, ctrl, cfg.Sounds.ClipDir, cfg.Sounds.MaxUploadBytes)

	if err := bot.Open(); err != nil {
		slog.Error("failed to connect to Discord", "err", err)
		return 1
	}

	// ── HTTP server (metrics + health) ────────────────────────────────────────
	checkers := []health.Checker{health.Discord(bot.Connected)}
	if pg != nil {
		checkers = append(checkers, health.Database(pg.Ping))
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("discord bot: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("voxhound ready — press Ctrl+C to shut down")

	exitCode := 0
	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		exitCode = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ctrl.Shutdown(shutdownCtx)
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	engine.Close()
	if pg != nil {
		pg.Close()
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Warn("metrics shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return exitCode
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
