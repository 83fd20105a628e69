package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"learner-progress-service/internal/config"
	"learner-progress-service/internal/infra/sqlite"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run SQLite storage migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), cmd, *configPath)
		},
	}
}

func runMigrations(ctx context.Context, cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := openSQLite(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := sqlite.Migrate(ctx, db)
	if err != nil {
		return err
	}
	newLogger(cfg).Info("migrations applied", "count", applied, "path", cfg.Storage.SQLitePath)
	fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", applied)
	return nil
}
