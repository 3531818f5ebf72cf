package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/migration"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultMigrationsDir = "internal/infrastructure/migration/sql"

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the ledger schema",
	Long: `Apply or inspect the versioned ledger schema. PostgreSQL uses the
embedded SQL migrations (or --dir); SQLite databases are created from the
models and only support "up".`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, true, func(m *migration.Migrator) error { return m.Up() })
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("rolling back drops every ledger table; pass --yes to confirm")
		}
		return withMigrator(cmd, false, func(m *migration.Migrator) error { return m.Down() })
	},
}

var migrateStepsCmd = &cobra.Command{
	Use:   "steps N",
	Short: "Apply N migrations (negative rolls back)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[0], err)
		}
		return withMigrator(cmd, false, func(m *migration.Migrator) error { return m.Steps(n) })
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, false, func(m *migration.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Printf("version: %d\ndirty: %t\n", version, dirty)
			return nil
		})
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force VERSION",
	Short: "Set the schema version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withMigrator(cmd, false, func(m *migration.Migrator) error { return m.Force(version) })
	},
}

var migrateCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty up/down migration pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = defaultMigrationsDir
		}
		description, _ := cmd.Flags().GetString("description")

		mf, err := migration.CreateMigration(dir, args[0], description)
		if err != nil {
			return err
		}
		fmt.Printf("Created migration %s\n  %s\n  %s\n", mf.Version, mf.UpPath, mf.DownPath)
		return nil
	},
}

var migrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		fsys := migration.SchemaFS()
		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			fsys = os.DirFS(dir)
		}
		names, err := migration.ListMigrations(fsys)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	migrateCmd.PersistentFlags().String("dir", "", "read migrations from this directory instead of the embedded set")
	migrateCmd.PersistentFlags().String("database-url", "", "migrate this PostgreSQL URL instead of the configured database")
	migrateDownCmd.Flags().Bool("yes", false, "confirm rolling back every migration")
	migrateCreateCmd.Flags().String("description", "", "description written into the new files")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStepsCmd, migrateVersionCmd,
		migrateForceCmd, migrateCreateCmd, migrateListCmd)
}

// withMigrator opens a migrator for the configured database and runs fn.
// SQLite is only supported by "up" (sqliteOK), which auto-migrates the models.
func withMigrator(cmd *cobra.Command, sqliteOK bool, fn func(*migration.Migrator) error) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if url, _ := cmd.Flags().GetString("database-url"); url != "" {
		m, err := migration.NewFromURL(url, log)
		if err != nil {
			return err
		}
		defer closeMigrator(m, log)
		return fn(m)
	}

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if cfg.Database.Driver == config.DriverSQLite {
		if !sqliteOK {
			return fmt.Errorf("%s is not supported for sqlite databases", cmd.Name())
		}
		log.Info("Creating SQLite ledger schema from models")
		return db.AutoMigrate()
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	dir, _ := cmd.Flags().GetString("dir")
	m, err := migration.New(sqlDB, dir, log)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)
	return fn(m)
}

func closeMigrator(m *migration.Migrator, log *zap.Logger) {
	if err := m.Close(); err != nil {
		log.Error("Error closing migrator", zap.Error(err))
	}
}
