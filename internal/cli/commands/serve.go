package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/unitdesign/internal/api"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve design resolution over HTTP",
		Long: `Start an HTTP API for resolving designs.

Endpoints:
  GET  /healthz
  GET  /metrics
  GET  /v1/unit-processes
  GET  /v1/unit-processes/{type}
  POST /v1/unit-processes/{type}/resolve
  POST /v1/resolve
  GET  /v1/events

With --watch, the catalog and formulas directories are reloaded on change.
A definition that fails to load leaves the previous catalog in service.`,
		Example: `  # Serve on the default address
  unitdesign serve

  # Reload definitions while editing them
  unitdesign serve --addr :9090 --watch`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8080)")
	cmd.Flags().Bool("watch", false, "Reload the catalog when definition files change")
	addResolverFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	cfg := cmdCtx.Cfg

	srv, err := api.NewServer(api.Config{
		Addr:            cfg.Server.Addr,
		Engine:          engineConfig(cfg, cmdCtx.Logger),
		Watch:           cfg.Server.Watch,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	r.Success("Serving " + itoaUnits(srv.Engine().Catalog().Len()) + " on http://" + cfg.Server.Addr)
	if cfg.Server.Watch {
		r.Println(r.Muted("watching " + cfg.CatalogDir + " and " + cfg.FormulasDir))
	}
	return srv.Serve(cmd.Context())
}

func itoaUnits(n int) string {
	if n == 1 {
		return "1 unit process"
	}
	return strconv.Itoa(n) + " unit processes"
}
