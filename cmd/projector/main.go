package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/article-cqrs/internal/app"
	"github.com/example/article-cqrs/internal/config"
	"github.com/example/article-cqrs/internal/domain/article"
	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/example/article-cqrs/internal/infrastructure/kafka"
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
		boot.Fatal().Err(err).Msg("article projector failed")
	}
}

// run consumes the event topic into the read model until ctx is cancelled
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log).With().Str("service", "article-projector").Logger()

	// the projector only consumes; it neither forwards nor projects locally
	brokers, topic, groupID := cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID
	cfg.Kafka.Enabled = false
	cfg.Projection.InProcess = false

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer a.Close()

	bus := eventbus.New(log, eventbus.WithRetry(cfg.Bus.RetryAttempts, cfg.Bus.RetryBackoff))
	a.SubscribeProjection(bus)

	consumer := kafka.NewConsumer(brokers, topic, groupID, log, kafka.WithPoison(article.IsPoison))
	defer consumer.Close()

	log.Info().Strs("brokers", brokers).Str("topic", topic).Str("group", groupID).Msg("consuming events")
	if err := consumer.Consume(ctx, kafka.DispatchTo(bus)); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer stopped: %w", err)
	}
	log.Info().Msg("shutting down")
	return nil
}
