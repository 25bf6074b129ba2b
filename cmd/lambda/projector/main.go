package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/article-cqrs/internal/app"
	"github.com/example/article-cqrs/internal/config"
	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/example/article-cqrs/internal/infrastructure/kinesis"
	"github.com/example/article-cqrs/internal/logging"
	"github.com/rs/zerolog"
)

func main() {
	// built once per container and reused across invocations
	handler, err := newHandler(context.Background(), os.Getenv("CONFIG_FILE"))
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("article lambda projector failed to start")
	}
	lambda.Start(handler.Handle)
}

// newHandler wires a projection-only bus behind a Kinesis batch handler
func newHandler(ctx context.Context, configPath string) (*kinesis.Handler, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log).With().Str("service", "article-lambda-projector").Logger()

	cfg.Kafka.Enabled = false
	cfg.Projection.InProcess = false

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build service: %w", err)
	}

	bus := eventbus.New(log, eventbus.WithRetry(cfg.Bus.RetryAttempts, cfg.Bus.RetryBackoff))
	a.SubscribeProjection(bus)

	return kinesis.NewHandler(bus, log), nil
}
