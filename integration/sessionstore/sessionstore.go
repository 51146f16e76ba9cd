// Package sessionstore builds the session.Storage selected by Config, so
// applications can switch backends through the environment:
//
//	var cfg sessionstore.Config
//	config.MustLoad(&cfg)
//
//	storage, err := sessionstore.Open(ctx, cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	store, err := session.NewStore(storage, session.WithLogger(logger))
//
// Connections opened by Open are released by the storage's Close, and
// Healthcheck turns the result into a readiness check.
package sessionstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/sessions/core/logger"
	"github.com/dmitrymomot/sessions/core/session"
	dbmongo "github.com/dmitrymomot/sessions/integration/database/mongo"
	"github.com/dmitrymomot/sessions/integration/database/pg"
	dbredis "github.com/dmitrymomot/sessions/integration/database/redis"
	"github.com/dmitrymomot/sessions/integration/sessionstore/bolt"
	"github.com/dmitrymomot/sessions/integration/sessionstore/metrics"
	mongostore "github.com/dmitrymomot/sessions/integration/sessionstore/mongo"
	"github.com/dmitrymomot/sessions/integration/sessionstore/postgres"
	redisstore "github.com/dmitrymomot/sessions/integration/sessionstore/redis"
)

type openOptions struct {
	registerer prometheus.Registerer
}

// Option configures Open.
type Option func(*openOptions)

// WithRegisterer sets the Prometheus registerer used when Config.Metrics is
// enabled. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *openOptions) {
		if reg != nil {
			o.registerer = reg
		}
	}
}

// Open creates the storage named by cfg.Backend.
func Open(ctx context.Context, cfg Config, log *slog.Logger, opts ...Option) (session.Storage, error) {
	o := openOptions{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.Discard()
	}

	storage, err := open(ctx, cfg, log)
	if err != nil {
		log.ErrorContext(ctx, "failed to open session storage",
			logger.Backend(cfg.Backend),
			logger.Error(err),
		)
		return nil, err
	}

	if cfg.Metrics {
		instrumented, err := metrics.New(storage, cfg.Backend, o.registerer)
		if err != nil {
			_ = storage.Close(ctx)
			return nil, fmt.Errorf("registering session storage metrics: %w", err)
		}
		storage = instrumented
	}

	log.InfoContext(ctx, "session storage opened", logger.Backend(cfg.Backend))
	return storage, nil
}

func open(ctx context.Context, cfg Config, log *slog.Logger) (session.Storage, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		ms := session.NewMemoryStorage(
			session.WithCleanupInterval(cfg.MemoryCleanupInterval),
			session.WithMemoryStorageLogger(log),
		)
		if cfg.MemoryCleanupInterval > 0 {
			// Stopped by Close.
			if err := ms.StartAsync(context.WithoutCancel(ctx)); err != nil {
				return nil, err
			}
		}
		return ms, nil

	case BackendFilesystem:
		return session.NewFileStorage(cfg.FSDir)

	case BackendBolt:
		return bolt.NewFromFile(cfg.BoltPath, nil)

	case BackendRedis:
		client, err := dbredis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return redisstore.New(client,
			redisstore.WithPrefix(cfg.KeyPrefix),
			redisstore.WithScanCount(cfg.Redis.ScanBatchSize),
			redisstore.WithOwnedClient(),
		), nil

	case BackendPostgres:
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
			pool.Close()
			return nil, err
		}
		release := func(context.Context) error {
			pool.Close()
			return nil
		}
		return withCloser(postgres.New(pool), release, pg.Healthcheck(pool)), nil

	case BackendMongo:
		db, err := dbmongo.NewWithDatabase(ctx, cfg.Mongo, "")
		if err != nil {
			return nil, err
		}
		storage, err := mongostore.New(ctx, db, mongostore.WithCollection(cfg.MongoCollection))
		if err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, err
		}
		return withCloser(storage, db.Client().Disconnect, dbmongo.Healthcheck(db.Client())), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// ownedStorage releases a connection opened by Open after the storage closes.
type ownedStorage struct {
	session.Storage
	release func(context.Context) error
	health  func(context.Context) error

	once   sync.Once
	result error
}

func withCloser(s session.Storage, release, health func(context.Context) error) *ownedStorage {
	return &ownedStorage{Storage: s, release: release, health: health}
}

func (s *ownedStorage) Unwrap() session.Storage {
	return s.Storage
}

func (s *ownedStorage) Healthcheck(ctx context.Context) error {
	return s.health(ctx)
}

func (s *ownedStorage) Close(ctx context.Context) error {
	s.once.Do(func() {
		err := s.Storage.Close(ctx)
		if rerr := s.release(ctx); rerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", session.ErrStorage, rerr)
		}
		s.result = err
	})
	return s.result
}

func (s *ownedStorage) DeleteExpired(ctx context.Context) (int64, error) {
	if cleaner, ok := s.Storage.(session.ExpiredCleaner); ok {
		return cleaner.DeleteExpired(ctx)
	}
	return 0, nil
}

type healthChecker interface {
	Healthcheck(ctx context.Context) error
}

// Healthcheck returns a readiness check for storage. Wrappers are unwrapped
// until a backend with a Healthcheck method is found; backends without one
// always report healthy.
func Healthcheck(storage session.Storage) func(context.Context) error {
	return func(ctx context.Context) error {
		for s := storage; s != nil; {
			if hc, ok := s.(healthChecker); ok {
				return hc.Healthcheck(ctx)
			}
			u, ok := s.(interface{ Unwrap() session.Storage })
			if !ok {
				return nil
			}
			s = u.Unwrap()
		}
		return nil
	}
}
