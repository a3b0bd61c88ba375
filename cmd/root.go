package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/clrmeta/internal/config"
	"github.com/agentic-research/clrmeta/internal/logging"
)

var version = "dev"

var (
	configPath string
	noColor    bool
	cfg        *config.Config
	logger     = zap.NewNop()
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to config file (default ./clrmeta.yaml)")
	pf.String("diagnostics", config.ModeCollect, "Malformed metadata handling: collect, strict or discard")
	pf.String("log-level", "info", "Log level")
	pf.Int("workers", 4, "Workers used by dump --warm")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")
}

var rootCmd = &cobra.Command{
	Use:           "clrmeta",
	Short:         "Browse .NET metadata tables as a lazily resolved object graph",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		v := config.New()
		pf := cmd.Root().PersistentFlags()
		for key, name := range map[string]string{
			"diagnostics.mode": "diagnostics",
			"log.level":        "log-level",
			"resolve.workers":  "workers",
		} {
			if err := v.BindPFlag(key, pf.Lookup(name)); err != nil {
				return err
			}
		}
		c, err := config.Load(v, configPath)
		if err != nil {
			return err
		}
		l, err := logging.New(c.Log.Level, c.Log.Development)
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "clrmeta:", err)
		os.Exit(1)
	}
}
