// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/store"
)

// Migrator is the subset of *store.Migrator used by the migrate commands.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]store.Migration, error)
	Close() error
}

// migratorFactory is replaced in tests.
var migratorFactory = func(dsn string) (Migrator, error) {
	return store.NewMigrator(dsn)
}

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage the users schema. Without a subcommand, applies all pending
migrations. DATABASE_URL selects the database.`,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			return migrateUp(cmd, m)
		}),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			return migrateUp(cmd, m)
		}),
	})

	var confirmDown bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if !confirmDown {
				return oops.Code("MIGRATION_NOT_CONFIRMED").Errorf("down drops every table; pass --yes to confirm")
			}
			if err := m.Down(); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
	}
	down.Flags().BoolVar(&confirmDown, "yes", false, "confirm rolling back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations (negative N rolls back)",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			n, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return oops.Code("INVALID_STEPS").With("input", args[0]).Wrap(err)
			}
			if err := m.Steps(n); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "steps").With("steps", n).Wrap(err)
			}
			return printVersion(cmd, m)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			return printVersion(cmd, m)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations (clears dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "force").With("version", v).Wrap(err)
			}
			cmd.Printf("Schema version forced to %d\n", v)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List migrations that have not been applied",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			pending, err := m.PendingMigrations()
			if err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "pending").Wrap(err)
			}
			if len(pending) == 0 {
				cmd.Println("No pending migrations")
				return nil
			}
			for _, mig := range pending {
				cmd.Println(mig.Name)
			}
			return nil
		}),
	})

	return cmd
}

// withMigrator opens a migrator for the duration of run.
func withMigrator(run func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		dsn, err := getDatabaseURL()
		if err != nil {
			return err
		}
		m, err := migratorFactory(dsn)
		if err != nil {
			return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				slog.Warn("error closing migrator", "error", closeErr)
			}
		}()
		return run(cmd, m, args)
	}
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
	}
	return printVersion(cmd, m)
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "version").Wrap(err)
	}
	if v == 0 {
		cmd.Println("Schema version: none")
		return nil
	}
	if dirty {
		cmd.Printf("Schema version: %d (dirty)\n", v)
		return nil
	}
	cmd.Printf("Schema version: %d\n", v)
	return nil
}

// getDatabaseURL reads DATABASE_URL.
func getDatabaseURL() (string, error) {
	secrets, err := config.LoadSecrets(nil)
	if err != nil {
		return "", err
	}
	if secrets.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	return secrets.DatabaseURL, nil
}

// parseForceVersion reads a leading integer from input.
func parseForceVersion(input string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(input), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", input).Wrap(err)
	}
	return v, nil
}
