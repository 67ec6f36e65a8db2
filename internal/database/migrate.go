package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/riftworks/taskqueue/internal/config"
)

// MigrateConfig holds migration configuration
type MigrateConfig struct {
	DatabaseConfig *config.DatabaseConfig
	MigrationsPath string
	Logger         *slog.Logger
}

// withMigrator opens a migrator, runs fn, and always releases the
// underlying connections.
func withMigrator(cfg *MigrateConfig, fn func(*migrate.Migrate) error) error {
	if cfg == nil || cfg.DatabaseConfig == nil {
		return fmt.Errorf("migration configuration is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m, err := migrate.New(cfg.MigrationsPath, postgresDSN(cfg.DatabaseConfig))
	if err != nil {
		return fmt.Errorf("failed to open migrator: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Error("failed to close migration source", "error", sourceErr)
		}
		if dbErr != nil {
			logger.Error("failed to close migration database handle", "error", dbErr)
		}
	}()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// MigrateUp applies every pending migration.
func MigrateUp(cfg *MigrateConfig) error {
	return withMigrator(cfg, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back one migration.
func MigrateDown(cfg *MigrateConfig) error {
	return withMigrator(cfg, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		return nil
	})
}

// MigrateReset rolls back every migration.
func MigrateReset(cfg *MigrateConfig) error {
	return withMigrator(cfg, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration reset failed: %w", err)
		}
		return nil
	})
}

// MigrateVersion reports the current schema version and whether the
// last migration left the schema dirty.
func MigrateVersion(cfg *MigrateConfig) (version uint, dirty bool, err error) {
	err = withMigrator(cfg, func(m *migrate.Migrate) error {
		v, d, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to read schema version: %w", verr)
		}
		version, dirty = v, d
		return nil
	})
	return version, dirty, err
}

// MigrateForce pins the schema version without running migrations,
// the escape hatch for a dirty schema.
func MigrateForce(cfg *MigrateConfig, version int) error {
	return withMigrator(cfg, func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force schema version: %w", err)
		}
		return nil
	})
}
