package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-arrower/api"
)

// Serve returns the command running the api until it receives SIGINT or SIGTERM.
func Serve(flags *rootFlags) *cobra.Command {
	var (
		withoutDatabase bool
		shutdownTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server, the status endpoint and the job workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := flags.compose()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []api.ContainerOpt
			if withoutDatabase {
				opts = append(opts, api.WithoutDatabase())
			}

			dc, err := api.InitialiseDependencies(ctx, conf, opts...)
			if err != nil {
				return fmt.Errorf("could not initialise: %w", err)
			}

			if err := dc.Start(ctx); err != nil {
				_ = dc.Shutdown(context.WithoutCancel(ctx))

				return fmt.Errorf("could not start: %w", err)
			}

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return dc.Shutdown(shutdownCtx) //nolint:wrapcheck // already wrapped by the container
		},
	}

	cmd.Flags().BoolVar(&withoutDatabase, "without-database", false, "run with in memory backends only")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "time to wait for running requests and jobs") //nolint:mnd,lll

	return cmd
}
