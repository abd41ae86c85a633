package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-arrower/api"
	"github.com/go-arrower/api/auth"
	"github.com/go-arrower/api/user"
)

// CreateSuperuser returns the command creating a user with all permissions.
// The password can be given by the environment variable API_SUPERUSER_PASSWORD,
// so it does not show up in the shell history.
func CreateSuperuser(flags *rootFlags) *cobra.Command {
	var (
		username, email, password string
		withoutDB                 bool
	)

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a superuser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("API_SUPERUSER_PASSWORD")
			}

			if password == "" {
				return fmt.Errorf("%w: superuser requires a password", user.ErrInvalidUser)
			}

			conf, err := flags.compose()
			if err != nil {
				return err
			}

			var repo user.Repository

			if withoutDB {
				store, err := api.NewLocalStore(conf)
				if err != nil {
					return err //nolint:wrapcheck // shown as is
				}

				if repo, err = user.OpenMemoryRepository(store); err != nil {
					return err //nolint:wrapcheck // shown as is
				}
			} else {
				db, err := connect(cmd.Context(), conf, api.DefaultDatabaseAlias)
				if err != nil {
					return err
				}
				defer db.Shutdown(cmd.Context()) //nolint:errcheck // best effort

				repo = user.NewPostgresRepository(db.PGx)
			}

			manager := user.NewManager(
				repo,
				auth.NewBcryptHasher(conf.Auth.PasswordHashCost),
				conf.Auth.PasswordMinLength,
			)

			u, err := manager.CreateSuperuser(cmd.Context(), username, email, password)
			if err != nil {
				return fmt.Errorf("could not create superuser: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "superuser %s created with id %s\n", u.Username, u.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the superuser")
	cmd.Flags().StringVar(&email, "email", "", "email address of the superuser")
	cmd.Flags().StringVar(&password, "password", "", "password, default is $API_SUPERUSER_PASSWORD")
	cmd.Flags().BoolVar(&withoutDB, "without-database", false,
		"write the superuser to the local store of the data root, read by a local serve without database")

	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
