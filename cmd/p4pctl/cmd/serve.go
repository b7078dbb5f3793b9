package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fieldcrew/p4p-engine/server"
)

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the recalculation scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			return server.Run(cfg)
		},
	}
	cmd.Flags().Int("port", 0, "HTTP port (default 8080)")
	_ = c.v.BindPFlag("http.port", cmd.Flags().Lookup("port"))
	return cmd
}
