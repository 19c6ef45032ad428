package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var archiveSchema embed.FS

// RunMigrations brings the archive schema (feeds, feed_items and the ns_dc
// and ns_content namespace tables) up to date and reports the schema version
// and whether a previous run left it dirty.
//
// The migrator shares db and is never closed, since closing it closes db.
func RunMigrations(db *DB) (uint, bool, error) {
	target, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return 0, false, fmt.Errorf("failed to open archive for migration: %w", err)
	}

	schema, err := iofs.New(archiveSchema, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to read embedded schema: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", schema, "sqlite", target)
	if err != nil {
		return 0, false, fmt.Errorf("failed to prepare archive migration: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read archive schema version: %w", err)
	}

	slog.Debug("Archive schema ready", "version", version, "dirty", dirty)
	return version, dirty, nil
}
