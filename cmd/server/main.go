package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/article-cqrs/internal/api"
	"github.com/example/article-cqrs/internal/app"
	"github.com/example/article-cqrs/internal/config"
	"github.com/example/article-cqrs/internal/logging"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("article server failed")
	}
}

// run serves until ctx is cancelled or the ops server fails
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log).With().Str("service", "article-server").Logger()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("close failed")
		}
	}()

	if cfg.Projection.RebuildOnStart {
		n, err := a.Rebuild(ctx)
		if err != nil {
			log.Error().Err(err).Int("events", n).Msg("read model rebuild finished with errors")
		} else {
			log.Info().Int("events", n).Msg("read model rebuilt")
		}
	}

	srv := &http.Server{
		Addr: cfg.Ops.Addr,
		Handler: api.NewRouter(api.RouterConfig{
			Gatherer: a.Registry,
			Ready:    a.Ready,
			Log:      log,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Ops.Addr).
			Str("store", cfg.Store.Backend).
			Str("cache", cfg.Cache.Backend).
			Bool("kafka", cfg.Kafka.Enabled).
			Msg("ops server listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server failed: %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
