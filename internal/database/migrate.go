// Package database owns the schema of the optional index snapshot database.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// ErrSchemaMissing means the snapshot database is reachable but was never migrated
var ErrSchemaMissing = errors.New("snapshot schema missing, run the migrate command")

// MigrationConfig points at the snapshot database. An empty MigrationsPath applies the
// migrations compiled into the binary.
type MigrationConfig struct {
	DatabaseURL    string
	MigrationsPath string
}

// MigrationStatus is the schema version after a run
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrator applies the snapshot schema. Close releases its connection.
type Migrator struct {
	db *sql.DB
	m  *migrate.Migrate
}

// NewMigrator connects to the database and loads the migration source
func NewMigrator(config MigrationConfig) (*Migrator, error) {
	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	var m *migrate.Migrate
	if config.MigrationsPath != "" {
		m, err = migrate.NewWithDatabaseInstance("file://"+config.MigrationsPath, "postgres", driver)
	} else {
		source, srcErr := iofs.New(embeddedMigrations, "migrations")
		if srcErr != nil {
			db.Close()
			return nil, fmt.Errorf("embedded migrations: %w", srcErr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "postgres", driver)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return &Migrator{db: db, m: m}, nil
}

// Up applies every pending migration
func (mg *Migrator) Up() (MigrationStatus, error) {
	changed := true
	if err := mg.m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("apply migrations: %w", err)
		}
		changed = false
	}
	status, err := mg.Status()
	status.Changed = changed
	return status, err
}

// Down reverts steps migrations
func (mg *Migrator) Down(steps int) (MigrationStatus, error) {
	if steps <= 0 {
		return MigrationStatus{}, fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	if err := mg.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationStatus{}, fmt.Errorf("roll back migrations: %w", err)
	}
	status, err := mg.Status()
	status.Changed = true
	return status, err
}

// Status reads the current version; a database with no migrations reports version 0
func (mg *Migrator) Status() (MigrationStatus, error) {
	version, dirty, err := mg.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

func (mg *Migrator) Close() error {
	srcErr, driverErr := mg.m.Close()
	return errors.Join(srcErr, driverErr, mg.db.Close())
}

// RunMigrations applies every pending up migration
func RunMigrations(config MigrationConfig) (MigrationStatus, error) {
	mg, err := NewMigrator(config)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer mg.Close()
	return mg.Up()
}

// RollbackMigrations reverts steps migrations
func RollbackMigrations(config MigrationConfig, steps int) (MigrationStatus, error) {
	if steps <= 0 {
		return MigrationStatus{}, fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	mg, err := NewMigrator(config)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer mg.Close()
	return mg.Down(steps)
}

// VerifyDatabase checks that the snapshot database accepts connections
func VerifyDatabase(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open snapshot database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping snapshot database: %w", err)
	}
	return nil
}

// CheckSchema verifies the pgvector extension and the catalog_objects table exist.
// Both missing pieces report ErrSchemaMissing.
func CheckSchema(ctx context.Context, db *sql.DB) error {
	var hasVector, hasTable bool
	err := db.QueryRowContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector'),
			to_regclass('public.catalog_objects') IS NOT NULL
	`).Scan(&hasVector, &hasTable)
	if err != nil {
		return fmt.Errorf("inspect snapshot schema: %w", err)
	}
	switch {
	case !hasVector:
		return fmt.Errorf("pgvector extension is not installed: %w", ErrSchemaMissing)
	case !hasTable:
		return fmt.Errorf("catalog_objects table not found: %w", ErrSchemaMissing)
	}
	return nil
}

// MigrationFiles lists the embedded migration file names
func MigrationFiles() ([]string, error) {
	entries, err := embeddedMigrations.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
