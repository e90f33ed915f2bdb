package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/chatsync/internal/adapters/http"
	wssignal "github.com/dkeye/chatsync/internal/adapters/signal"
	"github.com/dkeye/chatsync/internal/app"
	"github.com/dkeye/chatsync/internal/app/chat"
	"github.com/dkeye/chatsync/internal/app/orch"
	"github.com/dkeye/chatsync/internal/config"
	"github.com/dkeye/chatsync/internal/domain"
	"github.com/dkeye/chatsync/internal/metrics"
	"github.com/dkeye/chatsync/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logger until the config says otherwise.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	store, err := storage.Open(storage.Options{Path: cfg.BadgerPath, InMemory: cfg.BadgerInMemory})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()
	seedUsers(ctx, store, cfg.SeedUsers)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	policy, err := app.ParsePolicy(cfg.SlowConsumerPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("bad slow consumer policy")
	}
	broadcaster := orch.New(app.NewRegistry(), app.NewRoomManager(), policy, m)

	ctl := wssignal.NewSignalWSController(broadcaster,
		wssignal.NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval),
		wssignal.Options{SendBuffer: cfg.SendBuffer, ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Chat:     chat.NewService(store, broadcaster),
		Signal:   ctl,
		Rooms:    broadcaster,
		Metrics:  m,
		Gatherer: reg,
		Ping:     store.Ping,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("chatsync server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func seedUsers(ctx context.Context, store *storage.Store, names []string) {
	for _, name := range names {
		_, err := store.CreateUser(ctx, name)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrUserExists):
			log.Debug().Str("username", name).Msg("seed user already present")
		default:
			log.Warn().Err(err).Str("username", name).Msg("seed user failed")
		}
	}
}
