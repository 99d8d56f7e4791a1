package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/internal/config"
	"github.com/JakeFAU/webspider/internal/logging"
)

// cli carries what every subcommand needs once flags are parsed.
type cli struct {
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}
	cmd := &cobra.Command{
		Use:   "spider",
		Short: "Crawl the web with bounded concurrency",
		Long: `spider starts from one request, lets a handler turn every response into
items and follow-up requests, and streams the items to the configured output
until no work is left.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = c.logger.Sync()
		},
	}
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "path to a config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd(c))
	return cmd
}

func (c *cli) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}
