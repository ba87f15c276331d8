package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// opTimeout ограничивает одну операцию репозитория, даже если у вызывающего нет дедлайна.
const opTimeout = 5 * time.Second

// Store — пул соединений с PostgreSQL и общие помощники репозиториев.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
	pingTimeout time.Duration
	opTimeout   time.Duration
}

// Option настраивает пул при открытии.
type Option func(*poolSettings)

// WithMaxConns задаёт верхнюю границу открытых и простаивающих соединений.
func WithMaxConns(open, idle int) Option {
	return func(s *poolSettings) {
		if open > 0 {
			s.maxOpen = open
		}
		if idle >= 0 {
			s.maxIdle = idle
		}
	}
}

// WithConnLifetime ограничивает возраст и простой соединения.
func WithConnLifetime(lifetime, idle time.Duration) Option {
	return func(s *poolSettings) {
		if lifetime > 0 {
			s.maxLifetime = lifetime
		}
		if idle > 0 {
			s.maxIdleTime = idle
		}
	}
}

// WithOperationTimeout меняет дедлайн одной операции репозитория.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *poolSettings) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// Open открывает пул через драйвер pgx и проверяет, что база отвечает.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	settings := poolSettings{
		maxOpen:     20,
		maxIdle:     10,
		maxLifetime: 30 * time.Minute,
		maxIdleTime: 5 * time.Minute,
		pingTimeout: 5 * time.Second,
		opTimeout:   opTimeout,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	db.SetMaxOpenConns(settings.maxOpen)
	db.SetMaxIdleConns(settings.maxIdle)
	db.SetConnMaxLifetime(settings.maxLifetime)
	db.SetConnMaxIdleTime(settings.maxIdleTime)

	store := &Store{db: db, timeout: settings.opTimeout}
	pingCtx, cancel := context.WithTimeout(ctx, settings.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres is unreachable: %w", err)
	}
	return store, nil
}

// DB отдаёт пул для миграций и тестов.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется readiness-пробой.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is closed")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema накатывает все миграции; вызывается при POSTGRES_AUTO_MIGRATE.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = opTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// inTx выполняет fn в транзакции: коммит при nil, откат при любой ошибке.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// storageErr помечает ошибку драйвера как ErrStorage; доменные ошибки проходят как есть.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != nil {
		return err
	}
	return domain.WrapError(domain.ErrStorage, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
