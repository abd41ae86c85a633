package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-arrower/api"
	"github.com/go-arrower/api/alog"
	"github.com/go-arrower/api/postgres"
)

// Migrate returns the command applying all database migrations.
func Migrate(flags *rootFlags) *cobra.Command {
	var alias string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply all database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := flags.compose()
			if err != nil {
				return err
			}

			db, err := connect(cmd.Context(), conf, alias)
			if err != nil {
				return err
			}
			defer db.Shutdown(cmd.Context()) //nolint:errcheck // best effort

			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return err //nolint:wrapcheck // already wrapped by postgres
			}

			fmt.Fprintf(cmd.OutOrStdout(), "database %s migrated to version %d (dirty: %t)\n", alias, version, dirty)

			return nil
		},
	}

	cmd.Flags().StringVar(&alias, "database", api.DefaultDatabaseAlias, "alias of the database to migrate")

	return cmd
}

// connect connects to the database alias and applies all migrations.
func connect(ctx context.Context, conf *api.Config, alias string) (*postgres.Handler, error) {
	db, err := conf.Database(alias)
	if err != nil {
		return nil, err //nolint:wrapcheck // error names the alias
	}

	if conf.Environment == api.TestEnv {
		db = db.ForTesting()
	}

	pgConf, err := db.PostgresConfig(conf.ApplicationName)
	if err != nil {
		return nil, err //nolint:wrapcheck // error names the port
	}

	logger := alog.NewDevelopment()

	handler, err := postgres.ConnectAndMigrate(ctx, pgConf, postgres.WithRetryNotify(func(err error, next time.Duration) {
		logger.WarnContext(ctx, "database not reachable", slog.String("alias", alias),
			slog.String("error", err.Error()), slog.Duration("retry_in", next))
	}))
	if err != nil {
		return nil, fmt.Errorf("could not connect to database %s: %w", alias, err)
	}

	return handler, nil
}
