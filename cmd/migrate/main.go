// Package main runs schema migrations for the task queue's metadata
// store.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/riftworks/taskqueue/internal/config"
	"github.com/riftworks/taskqueue/internal/database"
	"github.com/riftworks/taskqueue/pkg/logger"
)

const usage = `Usage: migrate <command>

Commands:
  up        apply all pending migrations
  down      roll back one migration
  reset     roll back all migrations
  version   print current schema version
  force N   pin schema version to N without migrating (dirty-schema recovery)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level, cfg.Logger.Format).WithComponent("migrate")

	migrationsPath := "file://migrations"
	if absPath, err := filepath.Abs("migrations"); err == nil {
		migrationsPath = "file://" + absPath
	}

	migrateConfig := &database.MigrateConfig{
		DatabaseConfig: &cfg.Database,
		MigrationsPath: migrationsPath,
		Logger:         log.Logger,
	}

	if err := run(migrateConfig, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *database.MigrateConfig, args []string) error {
	switch args[0] {
	case "up":
		if err := database.MigrateUp(cfg); err != nil {
			return err
		}
		fmt.Println("migrations applied")

	case "down":
		if err := database.MigrateDown(cfg); err != nil {
			return err
		}
		fmt.Println("rolled back one migration")

	case "reset":
		if err := database.MigrateReset(cfg); err != nil {
			return err
		}
		fmt.Println("all migrations rolled back")

	case "version":
		version, dirty, err := database.MigrateVersion(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force requires a version number")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(cfg, version); err != nil {
			return err
		}
		fmt.Printf("schema version pinned to %d\n", version)

	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}
