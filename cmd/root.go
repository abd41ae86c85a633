// Package cmd contains the commands of the api binary.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/go-arrower/api"
)

// NewRootCmd returns the api command with all its sub commands.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "api",
		Short:         "REST API backend of go-arrower",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&flags.settingsDir, "settings-dir", "",
		"directory with settings fragments overriding the shipped ones, default is $API_SETTINGS_DIR")
	root.PersistentFlags().BoolVar(&flags.strict, "strict", false, "fail on unknown settings keys")

	root.AddCommand(
		Serve(flags),
		Check(flags),
		Migrate(flags),
		CreateSuperuser(flags),
		Version("api"),
	)

	return root
}

type rootFlags struct {
	settingsDir string
	strict      bool
}

func (f *rootFlags) compose() (*api.Config, error) {
	var opts []api.ComposeOption

	if f.settingsDir != "" {
		opts = append(opts, api.WithOverrideDir(f.settingsDir))
	}

	if f.strict {
		opts = append(opts, api.WithStrict())
	}

	return api.Compose(opts...) //nolint:wrapcheck // errors of the composer are shown as is
}
