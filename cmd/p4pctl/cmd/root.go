package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldcrew/p4p-engine/config"
	"github.com/fieldcrew/p4p-engine/server"
)

// cli carries the state shared by one command tree.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCmd builds a fresh command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}
	// Operator runs are quiet unless asked otherwise.
	c.v.SetDefault("log.level", "warn")
	c.v.SetDefault("log.format", "console")

	root := &cobra.Command{
		Use:   "p4pctl",
		Short: "p4pctl operates the P4P pay engine",
		Long: `p4pctl is the operator tool for the performance-based pay (P4P) engine.

It opens the configured store directly, so it can run next to or instead of
the HTTP server.

Common workflows:

  Serve the HTTP API:
    p4pctl serve --port 8080

  Recalculate every completed job:
    p4pctl recalc

  Show the pay period for a day, or a whole year:
    p4pctl period 2024-02-29
    p4pctl period --year 2025

  Recalculate one job and print each crew member's pay:
    p4pctl calc job <job-id>

  Payroll report for the period containing a day:
    p4pctl report --date 2024-07-29 --pdf payroll.pdf

  Load demo data:
    p4pctl scenario load spanning-job

Configuration:
  Flags, P4P_* environment variables, a .env file or a YAML file (--config):
    P4P_STORE_DRIVER    sqlite, postgres or memory (default: sqlite)
    P4P_STORE_DSN       sqlite path or postgres URL (default: p4p.db)
    P4P_FLOOR_SOURCE    configuration, employee or greater`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "YAML config file")
	flags.String("store-driver", "", "store driver: sqlite, postgres or memory")
	flags.String("store-dsn", "", "sqlite path or postgres URL")
	flags.String("log-level", "", "debug, info, warn or error")
	_ = c.v.BindPFlag("store.driver", flags.Lookup("store-driver"))
	_ = c.v.BindPFlag("store.dsn", flags.Lookup("store-dsn"))
	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		c.newServeCmd(),
		c.newRecalcCmd(),
		c.newPeriodCmd(),
		c.newCalcCmd(),
		c.newReportCmd(),
		c.newScenarioCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func (c *cli) config() (*config.Config, error) {
	return config.LoadViper(c.v, c.cfgFile)
}

// openApp loads configuration and wires the store and service. Callers
// must Close the app.
func (c *cli) openApp(ctx context.Context) (*server.App, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return server.New(ctx, cfg)
}
