package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/roombook/internal/store/migrations"
)

// MigrateResult reports the schema version before and after a migration run.
type MigrateResult struct {
	From    uint
	Version uint
	Changed bool
}

// Migrate brings the schema up to the latest embedded version.
func (db *DB) Migrate() (*MigrateResult, error) {
	return db.migrate(func(m *migrate.Migrate) error { return m.Up() })
}

// Rollback reverts the last n applied migrations.
func (db *DB) Rollback(n int) (*MigrateResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("rollback: steps must be positive, got %d", n)
	}
	return db.migrate(func(m *migrate.Migrate) error { return m.Steps(-n) })
}

func (db *DB) migrate(run func(*migrate.Migrate) error) (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	// The driver is not closed: closing it would close db.DB as well.
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	from, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	if err := run(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migration: %w", err)
	}
	to, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	return &MigrateResult{From: from, Version: to, Changed: from != to}, nil
}

// schemaVersion returns 0 for an empty database and fails on a dirty schema.
func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("%w: version %d", ErrDirtySchema, v)
	}
	return v, nil
}
