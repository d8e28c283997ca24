// Package migrate applies the embedded PostgreSQL schema migrations.
package migrate

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Runner wraps a golang-migrate instance bound to the embedded migrations.
type Runner struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// New builds a Runner for the given PostgreSQL DSN.
func New(dsn string, logger *slog.Logger) (*Runner, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("platform/migrate: open source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, DriverURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("platform/migrate: init: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{m: m, logger: logger}, nil
}

// DriverURL rewrites a postgres:// DSN to the pgx/v5 driver scheme.
func DriverURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	err := r.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("schema up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("platform/migrate: up: %w", err)
	}
	r.logVersion("schema migrated")
	return nil
}

// Down rolls back the given number of migrations.
func (r *Runner) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}
	err := r.m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("platform/migrate: down: %w", err)
	}
	r.logVersion("schema rolled back")
	return nil
}

// Version reports the current schema version and whether it is dirty.
func (r *Runner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the source and database handles.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

func (r *Runner) logVersion(msg string) {
	v, dirty, err := r.Version()
	if err != nil {
		r.logger.Warn("read schema version", slog.Any("error", err))
		return
	}
	r.logger.Info(msg, slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))
}
