package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsDir = "sql/migrations"
	// migrationLockID — ключ pg_advisory_lock, общий для всех экземпляров storefront.
	migrationLockID = int64(0x53544f52)

	schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    BIGINT PRIMARY KEY,
	name       TEXT        NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

	errStoreClosed = errors.New("postgres store is closed")
)

// migration — пара up/down скриптов одной версии схемы.
type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// migrationStep — один шаг плана: применить up или откатить down.
type migrationStep struct {
	migration
	rollback bool
}

func (s migrationStep) script() string {
	if s.rollback {
		return s.Down
	}
	return s.Up
}

func (s migrationStep) String() string {
	verb := "up"
	if s.rollback {
		verb = "down"
	}
	return fmt.Sprintf("%s %04d_%s", verb, s.Version, s.Name)
}

// MigrationInfo описывает встроенную миграцию и её состояние в базе.
type MigrationInfo struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// MigrateUp накатывает steps ещё не применённых миграций; steps <= 0 означает все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.runMigrations(ctx, func(all []migration, applied map[int64]time.Time) ([]migrationStep, error) {
		return planUp(all, applied, steps), nil
	})
}

// MigrateDown откатывает steps последних миграций; steps <= 0 означает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.runMigrations(ctx, func(all []migration, applied map[int64]time.Time) ([]migrationStep, error) {
		return planDown(all, applied, steps)
	})
}

// MigrationStatus возвращает максимальную применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return 0, 0, err
	}
	var latest int64
	for version := range applied {
		if version > latest {
			latest = version
		}
	}
	return latest, len(applied), nil
}

// Migrations перечисляет встроенные миграции по возрастанию версии.
func (s *Store) Migrations(ctx context.Context) ([]MigrationInfo, error) {
	all, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return nil, err
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	return describeMigrations(all, applied), nil
}

func describeMigrations(all []migration, applied map[int64]time.Time) []MigrationInfo {
	out := make([]MigrationInfo, len(all))
	for i, m := range all {
		at, ok := applied[m.Version]
		out[i] = MigrationInfo{Version: m.Version, Name: m.Name, Applied: ok, AppliedAt: at}
	}
	return out
}

// planUp выбирает неприменённые миграции по возрастанию версии.
func planUp(all []migration, applied map[int64]time.Time, steps int) []migrationStep {
	var plan []migrationStep
	for _, m := range all {
		if _, done := applied[m.Version]; done {
			continue
		}
		if steps > 0 && len(plan) == steps {
			break
		}
		plan = append(plan, migrationStep{migration: m})
	}
	return plan
}

// planDown откатывает применённые версии от последней; версия без файлов даёт ошибку.
func planDown(all []migration, applied map[int64]time.Time, steps int) ([]migrationStep, error) {
	known := make(map[int64]migration, len(all))
	for _, m := range all {
		known[m.Version] = m
	}

	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if len(versions) > steps {
		versions = versions[:steps]
	}

	plan := make([]migrationStep, 0, len(versions))
	for _, version := range versions {
		m, ok := known[version]
		if !ok {
			return nil, fmt.Errorf("applied migration %d has no embedded scripts", version)
		}
		plan = append(plan, migrationStep{migration: m, rollback: true})
	}
	return plan, nil
}

type planner func(all []migration, applied map[int64]time.Time) ([]migrationStep, error)

// runMigrations строит план под advisory lock и выполняет каждый шаг в своей транзакции.
func (s *Store) runMigrations(ctx context.Context, plan planner) error {
	if s == nil || s.db == nil {
		return errStoreClosed
	}
	all, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := queryApplied(ctx, conn)
	if err != nil {
		return err
	}

	steps, err := plan(all, applied)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if err := runStep(ctx, conn, step); err != nil {
			return err
		}
	}
	return nil
}

func runStep(ctx context.Context, conn *sql.Conn, step migrationStep) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", step, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, step.script()); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}

	bookkeeping, args := `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, []any{step.Version, step.Name}
	if step.rollback {
		bookkeeping, args = `DELETE FROM schema_migrations WHERE version = $1`, []any{step.Version}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("%s: record: %w", step, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", step, err)
	}
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[int64]time.Time, error) {
	if s == nil || s.db == nil {
		return nil, errStoreClosed
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	return queryApplied(ctx, conn)
}

func queryApplied(ctx context.Context, conn *sql.Conn) (map[int64]time.Time, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]time.Time)
	for rows.Next() {
		var (
			version int64
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = at.UTC()
	}
	return applied, rows.Err()
}

// loadMigrationsFromFS собирает пары NNNN_name.up.sql / NNNN_name.down.sql из migrationsDir.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsDir, err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		parts := migrationName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("bad migration file name %q", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad migration version in %q: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		script := strings.TrimSpace(string(raw))
		if script == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if m.Name != parts[2] {
			return nil, fmt.Errorf("version %d is used by %q and %q", version, m.Name, parts[2])
		}

		target := &m.Up
		if parts[3] == "down" {
			target = &m.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s script for version %d", parts[3], version)
		}
		*target = script
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migrations embedded")
	}

	all := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %04d_%s needs both up and down scripts", m.Version, m.Name)
		}
		all = append(all, *m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	return all, nil
}
