// Package app wires the article service from its configuration. Both
// binaries and the CLI build the same graph through New.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/article-cqrs/internal/command"
	"github.com/example/article-cqrs/internal/config"
	"github.com/example/article-cqrs/internal/domain/aggregate"
	"github.com/example/article-cqrs/internal/domain/article"
	"github.com/example/article-cqrs/internal/eventbus"
	"github.com/example/article-cqrs/internal/infrastructure/cache"
	"github.com/example/article-cqrs/internal/infrastructure/kafka"
	"github.com/example/article-cqrs/internal/infrastructure/store"
	"github.com/example/article-cqrs/internal/metrics"
	"github.com/example/article-cqrs/internal/projection"
	"github.com/example/article-cqrs/internal/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// ErrCacheUnavailable is reported by Ready while the cache breaker is open
var ErrCacheUnavailable = errors.New("cache breaker open")

// App is the wired service
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Prometheus

	Events     store.EventStore
	Snapshots  store.SnapshotStore
	ReadStore  store.ReadModelStore
	Transactor store.Transactor
	Cache      *cache.Cache
	Bus        *eventbus.Bus

	Articles *article.SnapshottingRepository
	Commands *command.Handler
	Queries  *query.Handler

	db      *sql.DB
	breaker *cache.BreakerStore
	closers []func() error
}

// New builds the service from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	steps := []func(context.Context) error{
		a.openStores,
		a.openCache,
		a.buildBus,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	var trigger aggregate.SnapshotTrigger = aggregate.NeverSnapshot{}
	if cfg.Snapshot.Threshold > 0 {
		trigger = aggregate.EventCountTrigger{Threshold: cfg.Snapshot.Threshold}
	}

	// slugs are checked against the read store directly; the cache may lag
	slugger := article.NewUniqueSlugGenerator(a.ReadStore)

	a.Articles = article.NewSnapshottingRepository(a.Events, a.Snapshots, slugger,
		aggregate.WithTransactor(a.Transactor),
		aggregate.WithSnapshotTrigger(trigger),
		aggregate.WithPublisher(a.Bus),
		aggregate.WithMetrics(a.Metrics),
		aggregate.WithLogger(log),
	)
	a.Commands = command.NewHandler(a.Articles, slugger, log)

	ttls := query.TTLs{
		FetchOne:  cfg.Cache.TTL.FetchOne,
		FindOneBy: cfg.Cache.TTL.FindOneBy,
		FindBy:    cfg.Cache.TTL.FindBy,
	}
	cached := query.NewCachedReadRepository(query.NewStoreReadRepository(a.ReadStore), a.Cache, ttls, log)
	a.Queries = query.NewHandler(cached)

	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config.Store

	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := store.ConnectPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		if err := store.EnsureSchema(ctx, db); err != nil {
			return err
		}
		a.Events = store.NewPostgresEventStore(db)
		a.Snapshots = store.NewPostgresSnapshotStore(db)
		a.ReadStore = store.NewPostgresReadStore(db)
		a.Transactor = store.NewPostgresTransactor(db)

	case config.BackendDynamoDB:
		client, err := newDynamoClient(ctx, cfg.DynamoDB)
		if err != nil {
			return err
		}
		a.Events = store.NewDynamoEventStore(client, cfg.DynamoDB.EventsTable)
		a.Snapshots = store.NewDynamoSnapshotStore(client, cfg.DynamoDB.SnapshotsTable)
		a.ReadStore = store.NewReadStore()
		a.Transactor = store.NopTransactor{}

	default:
		a.Events = store.NewMemoryEventStore()
		a.Snapshots = store.NewMemorySnapshotStore()
		a.ReadStore = store.NewReadStore()
		a.Transactor = store.NopTransactor{}
	}

	a.Log.Info().Str("backend", cfg.Backend).Msg("stores ready")
	return nil
}

func newDynamoClient(ctx context.Context, cfg config.DynamoDBConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func (a *App) openCache(_ context.Context) error {
	cfg := a.Config.Cache

	var backend cache.Store
	switch cfg.Backend {
	case config.BackendBadger:
		db, err := cache.OpenBadger(cfg.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		backend = cache.NewBadgerStore(db)
	default:
		backend = cache.NewMemoryStore()
	}

	if cfg.Breaker.Enabled {
		a.breaker = cache.NewBreakerStore(backend, cache.BreakerConfig{
			Name:             "cache-" + cfg.Backend,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Timeout:          cfg.Breaker.Timeout,
		}, a.Log)
		backend = a.breaker
	}

	a.Cache = cache.New(backend, a.Log, cache.WithBeta(cfg.Beta), cache.WithMetrics(a.Metrics))
	a.Log.Info().Str("backend", cfg.Backend).Bool("breaker", cfg.Breaker.Enabled).Msg("cache ready")
	return nil
}

func (a *App) buildBus(_ context.Context) error {
	a.Bus = eventbus.New(a.Log, eventbus.WithRetry(a.Config.Bus.RetryAttempts, a.Config.Bus.RetryBackoff))

	if a.Config.Projection.InProcess {
		a.SubscribeProjection(a.Bus)
	}

	if a.Config.Kafka.Enabled {
		producer := kafka.NewProducer(a.Config.Kafka.Brokers, a.Config.Kafka.Topic, a.Log)
		a.closers = append(a.closers, producer.Close)
		a.Bus.Subscribe(eventbus.Instrument(producer, a.Metrics))
	}
	return nil
}

// SubscribeProjection attaches the projector and cache invalidator to b, in
// that order, so the read model is updated before cached reads are dropped.
func (a *App) SubscribeProjection(b *eventbus.Bus) {
	b.Subscribe(eventbus.Instrument(projection.NewProjector(a.ReadStore, a.Log), a.Metrics))
	b.Subscribe(eventbus.Instrument(projection.NewCacheInvalidator(a.Cache, a.Log), a.Metrics))
}

// Rebuild replays the event log into the read model through a bus that
// carries only the projection listeners.
func (a *App) Rebuild(ctx context.Context) (int, error) {
	b := eventbus.New(a.Log, eventbus.WithRetry(a.Config.Bus.RetryAttempts, a.Config.Bus.RetryBackoff))
	a.SubscribeProjection(b)
	return projection.Rebuild(ctx, a.Events, b, a.Log)
}

// Ping checks the database when there is one
func (a *App) Ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

// Ready reports whether the instance should receive traffic: the database
// answers and the cache breaker is not open.
func (a *App) Ready(ctx context.Context) error {
	if err := a.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.breaker != nil && a.breaker.State() == cache.BreakerOpen {
		return ErrCacheUnavailable
	}
	return nil
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
