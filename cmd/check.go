package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go-arrower/api"
)

// Check returns the command composing all settings fragments and printing the result.
// Secrets are masked.
func Check(flags *rootFlags) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compose the settings and print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := flags.compose()
			if err != nil {
				return err
			}

			if !quiet {
				out, err := json.MarshalIndent(conf, "", "  ")
				if err != nil {
					return fmt.Errorf("could not print settings: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}

			_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(),
				"settings ok: %d fragments merged, environment %s\n", len(api.Fragments()), conf.Environment)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report whether the settings are valid")

	return cmd
}
