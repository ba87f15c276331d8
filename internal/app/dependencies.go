package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	mongostore "github.com/vladislavdragonenkov/storefront/internal/storage/mongo"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	repo            domain.OrderRepository
	timelineRepo    domain.TimelineRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	cartRepo        domain.CartRepository

	// idempotencyCleanup выключается для Redis: ключи истекают по TTL.
	idempotencyCleanup bool

	checkers map[string]healthcheck.Checker
	closers  []func(context.Context) error
}

func (d *runtimeDependencies) addCloser(fn func(context.Context) error) {
	d.closers = append(d.closers, fn)
}

func (d *runtimeDependencies) addChecker(name string, checker healthcheck.Checker) {
	if d.checkers == nil {
		d.checkers = make(map[string]healthcheck.Checker)
	}
	d.checkers[name] = checker
}

// Close закрывает подключения в обратном порядке.
func (d *runtimeDependencies) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initRuntimeDependencies открывает хранилище заказов по драйверу и, если задан Redis,
// переносит туда ключи идемпотентности и корзины.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &runtimeDependencies{idempotencyCleanup: true}
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		deps.useMemory()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if err := deps.usePostgres(ctx, cfg, logger); err != nil {
			return nil, err
		}
	case StorageDriverMongo:
		if err := deps.useMongo(ctx, cfg, logger); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if deps.cartRepo == nil {
		deps.cartRepo = memory.NewCartRepository()
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		if err := deps.useRedis(ctx, cfg, logger); err != nil {
			_ = deps.Close(context.Background())
			return nil, err
		}
	}
	return deps, nil
}

func (d *runtimeDependencies) useMemory() {
	d.repo = memory.NewOrderRepository()
	d.timelineRepo = memory.NewTimelineRepository()
	d.outboxRepo = memory.NewOutboxRepository()
	d.idempotencyRepo = memory.NewIdempotencyRepository()
	d.addChecker("storage", healthcheck.NewSimpleChecker("storage", func() error { return nil }))
}

func (d *runtimeDependencies) usePostgres(ctx context.Context, cfg Config, logger *log.Entry) error {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return errors.New("postgres storage requires a DSN")
	}
	store, err := postgres.Open(ctx, cfg.PostgresDSN,
		postgres.WithMaxConns(cfg.PostgresMaxConns, cfg.PostgresMaxConns/2),
		postgres.WithConnLifetime(cfg.PostgresConnMaxAge, 0),
		postgres.WithOperationTimeout(cfg.PostgresOpTimeout),
	)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}

	d.repo = postgres.NewOrderRepository(store)
	d.timelineRepo = postgres.NewTimelineRepository(store)
	d.outboxRepo = postgres.NewOutboxRepository(store)
	d.idempotencyRepo = postgres.NewIdempotencyRepository(store)
	d.addChecker("postgres", healthcheck.NewPingChecker("postgres", store.Ping))
	d.addCloser(func(context.Context) error { return store.Close() })
	logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
	return nil
}

// useMongo хранит заказы и timeline в MongoDB; outbox и идемпотентность остаются в памяти.
func (d *runtimeDependencies) useMongo(ctx context.Context, cfg Config, logger *log.Entry) error {
	if strings.TrimSpace(cfg.MongoURI) == "" {
		return errors.New("mongo storage requires a URI")
	}
	store, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("open mongo: %w", err)
	}

	d.repo = mongostore.NewOrderRepository(store)
	d.timelineRepo = mongostore.NewTimelineRepository(store)
	d.outboxRepo = memory.NewOutboxRepository()
	d.idempotencyRepo = memory.NewIdempotencyRepository()
	d.addChecker("mongo", healthcheck.NewPingChecker("mongo", store.Ping))
	d.addCloser(store.Close)
	logger.WithField("database", cfg.MongoDatabase).Info("using mongo storage")
	return nil
}

func (d *runtimeDependencies) useRedis(ctx context.Context, cfg Config, logger *log.Entry) error {
	store, err := redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("open redis: %w", err)
	}
	d.idempotencyRepo = redisstore.NewIdempotencyRepository(store)
	d.cartRepo = redisstore.NewCartRepository(store, cfg.CartTTL)
	d.idempotencyCleanup = false
	d.addChecker("redis", healthcheck.NewOptionalChecker("redis", store.Ping))
	d.addCloser(func(context.Context) error { return store.Close() })
	logger.WithField("addr", cfg.RedisAddr).Info("using redis for idempotency keys and carts")
	return nil
}
