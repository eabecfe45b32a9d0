package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/practicos/internal/app"
	"github.com/practicos/internal/log"
	"github.com/practicos/internal/profile"
	"github.com/practicos/internal/service"
	"github.com/practicos/internal/store"
)

func main() {
	config := app.Load()
	if err := log.Configure(log.Config{Level: config.LogLevel, File: config.LogFile, Service: "practicos-server"}); err != nil {
		logger := log.WithComponent("main")
		logger.Warn().Err(err).Msg("log file unavailable")
	}
	defer log.Close()
	logger := log.WithComponent("main")

	if err := config.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	p, err := profile.Load(config.ProfilePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load profile")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &Server{config: config, profile: p}
	var recorder service.Recorder
	if config.DatabaseUrl != "" {
		pool, err := store.Open(ctx, config.DatabaseUrl)
		if err != nil {
			logger.Fatal().Err(err).Msg("open database")
		}
		defer pool.Close()
		if err := store.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
		documents := store.NewDocumentStore(pool)
		srv.documents = documents
		recorder = documents
	}
	srv.extractor = service.New(config, p, recorder)

	server := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", config.ServerAddr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
