// internal/cli/serve.go
package concilium

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwiater/concilium/internal/appconfig"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/metrics"
	"github.com/mwiater/concilium/internal/server"
)

// serveCmd starts the HTTP front-end.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web front-end and the pipeline endpoints",
	Long:  `Serve the single-page front-end together with /process, /merge, /cancel, /convert and /get-full-content.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}

		stopSignals := logging.ObserveSignals()
		defer stopSignals()

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var agg *metrics.Aggregator
		if cfg.Metrics {
			agg = metrics.GetInstance()
		}
		srv, err := server.New(server.Deps{
			Config:       *cfg,
			Orchestrator: a.orch,
			Store:        a.store,
			Metrics:      agg,
		})
		if err != nil {
			return err
		}

		printBanner(cmd.OutOrStdout(), *cfg, a.names())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx)
	},
}

func printBanner(out io.Writer, cfg appconfig.Config, names [3]string) {
	title := color.New(color.FgHiYellow, color.Bold).SprintFunc()
	label := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintln(out, title("concilium "+appVersion))
	fmt.Fprintf(out, "  %s %s\n", label("listening:"), cfg.Listen)
	fmt.Fprintf(out, "  %s %s -> %s -> %s\n", label("backends: "), names[0], names[1], names[2])
	fmt.Fprintf(out, "  %s %s (ttl %s)\n", label("store:    "), cfg.Store.Type, cfg.StoreTTL())
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on (default :5000)")
	_ = v.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(serveCmd)
}
