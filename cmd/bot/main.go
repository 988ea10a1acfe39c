package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/leecheenbao/tripeak-b2b/internal/config"
	"github.com/leecheenbao/tripeak-b2b/internal/conversation"
	"github.com/leecheenbao/tripeak-b2b/internal/dispatch"
	"github.com/leecheenbao/tripeak-b2b/internal/line"
	"github.com/leecheenbao/tripeak-b2b/internal/logger"
	"github.com/leecheenbao/tripeak-b2b/internal/nlu"
	"github.com/leecheenbao/tripeak-b2b/internal/scheduler"
	"github.com/leecheenbao/tripeak-b2b/internal/store"
	"github.com/leecheenbao/tripeak-b2b/internal/webhook"
)

func main() {
	_ = godotenv.Load(".env")

	bootLog := logger.GetLogger()

	cfg, err := config.New()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("invalid log settings")
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("creating database directory")
		}
	}

	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("opening database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.SeedDefaultTemplates(ctx); err != nil {
		log.Fatal().Err(err).Msg("seeding message templates")
	}

	provider, err := nlu.NewProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("creating nlu provider")
	}
	router := nlu.NewRouter(provider)
	log.Info().Str("provider", provider.Name()).Msg("nlu provider ready")

	lineClient, err := line.NewClient(cfg.LineChannelSecret, cfg.LineChannelAccessToken)
	if err != nil {
		log.Fatal().Err(err).Msg("creating line client")
	}

	conversations := conversation.NewStore(db, cfg.HistoryLimit)
	dispatcher := dispatch.New(db, db)
	handler := webhook.NewHandler(conversations, router, dispatcher, lineClient)

	reaper := scheduler.New(db, cfg.ReaperSchedule, cfg.StaleWaitingAfter)
	if err := reaper.Start(); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.ReaperSchedule).Msg("starting scheduler")
	}
	defer reaper.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           webhook.NewRouter(lineClient, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("webhook server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("webhook server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
