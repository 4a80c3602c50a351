package listscmd

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	serverrun "github.com/rzbill/listdb/internal/cmd/server"
)

func newServeCommand(g *globals) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run scheduled retention and the metrics endpoint until interrupted",
		Aliases: []string{"server"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}
			logger, err := g.logger(cfg)
			if err != nil {
				return err
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg, Logger: logger}); err != nil {
				return errors.Wrap(err, "server error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus listen address (empty keeps the configured value)")
	return cmd
}
