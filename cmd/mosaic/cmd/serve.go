package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaic/internal/server"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP search service",
		Long: `Start the HTTP search service.

Missing metadata tables are built before the listener starts. The service
stops gracefully on SIGINT or SIGTERM.

Endpoints:
  /search         JSON results
  /searchxml      Atom feed with OpenSearch paging
  /full-text      full text of one document
  /index-info     document counts and languages
  /opensearch.xml OpenSearch description
  /stats          query statistics
  /metrics        Prometheus metrics`,
		Example: `  mosaic serve --index-dir /data/index --parquet-dir /data/parquet
  mosaic serve --addr :9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8000)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *globalOptions, addr string) error {
	a, closeApp, err := opts.openApp(ctx, cmd, "")
	if err != nil {
		return err
	}
	defer closeApp()

	if addr != "" {
		a.Config.Server.Addr = addr
	}

	srv, err := server.New(a)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
