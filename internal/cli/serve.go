package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/httpapi"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the history viewer API",
		Long: `Serve a JSON API for a local history viewer until interrupted.

The listen address defaults to $TALLY_HTTP_ADDR (127.0.0.1:7433). Browser
origins allowed by CORS come from $TALLY_CORS_ORIGINS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = rootOpts.Config.HTTPAddr
			}

			tracker, closeFn, err := rootOpts.openTracker()
			if err != nil {
				return err
			}
			defer closeFn()

			router := httpapi.NewRouter(tracker, httpapi.Options{
				AllowedOrigins: rootOpts.Config.CORSOrigins,
				Logger:         rootOpts.logger(),
				Timeout:        timeout,
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "Serving history viewer on http://%s\n", addr)

			srv := httpapi.NewServer(addr, router, rootOpts.logger())
			if err := srv.ListenAndServe(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "serve", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $TALLY_HTTP_ADDR)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	return cmd
}
