package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// schemaMigrator owns its own *sql.DB: migrate.Close closes the driver's
// connection, which must not be the repository pool.
type schemaMigrator struct {
	db *sql.DB
	m  *migrate.Migrate
}

func openMigrator(dsn string) (*schemaMigrator, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open migration database: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return &schemaMigrator{db: db, m: m}, nil
}

func (s *schemaMigrator) close() {
	_, _ = s.m.Close()
	_ = s.db.Close()
}

// RunMigrations brings the schema at dsn up to date and returns the
// resulting version.
func RunMigrations(dsn string) (uint, error) {
	s, err := openMigrator(dsn)
	if err != nil {
		return 0, err
	}
	defer s.close()

	if err := s.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := s.m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
