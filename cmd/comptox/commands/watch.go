package commands

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comptox-ai/comptox-api-client/internal/app"
	"github.com/comptox-ai/comptox-api-client/internal/metrics"
)

func newWatchCmd(rt *runtime) *cobra.Command {
	var (
		targetsFile string
		metricsAddr string
		once        bool
		only        []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll watch targets and publish changed responses",
		Long: `watch refetches every target from the targets file on the watch
interval. Responses not seen before are published as change events to the
publishers declared in the publishers file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if t := strings.TrimSpace(targetsFile); t != "" {
				rt.cfg.TargetsFile = t
			}
			if addr := strings.TrimSpace(metricsAddr); addr != "" {
				rt.cfg.MetricsAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := app.NewWatch(ctx, rt.app, only...)
			if err != nil {
				return err
			}
			defer w.Close()

			if once {
				return w.RunOnce(ctx)
			}

			if rt.cfg.MetricsAddr != "" {
				srv, err := metrics.Listen(rt.cfg.MetricsAddr)
				if err != nil {
					return err
				}
				go func() {
					if err := srv.Serve(); err != nil {
						rt.log.ErrorObj("metrics server stopped", "error", err)
					}
				}()
				defer srv.Shutdown()
				rt.log.InfoObj("metrics server listening", "metrics_addr", srv.Addr())
			}

			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&targetsFile, "targets", "", "targets file (overrides TARGETS_FILE)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	cmd.Flags().StringSliceVar(&only, "publisher", nil, "publish only to these publisher ids (repeatable)")
	return cmd
}
