// Package cli exposes pairwatch's cobra command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pairwatch/internal/app"
	"pairwatch/internal/config"
	"pairwatch/internal/logging"
)

// session carries the persistent flags and the lazily built App shared by
// every sub-command.
type session struct {
	cfgFile  string
	logLevel string
	app      *app.App
}

func (s *session) load(cmd *cobra.Command, _ []string) error {
	if s.app != nil || cmd.Annotations["skip-config"] == "true" {
		return nil
	}

	cfg, err := config.Load(s.cfgFile)
	if err != nil {
		return err
	}
	if s.logLevel != "" {
		cfg.Logging.Level = s.logLevel
	}

	s.app = app.NewApp(cfg, logging.NewLogger(cfg.Logging, cfg.App.Name))
	return nil
}

func (s *session) App() *app.App {
	if s.app == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return s.app
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:               "pairwatch",
		Short:             "Telegram alerts for new trades on an on-chain pair",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: s.load,
	}

	root.PersistentFlags().StringVar(&s.cfgFile, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "Override log level defined in config")

	root.AddCommand(
		newRunCmd(s),
		newShowCmd(s),
		newExportCmd(s),
		newPruneCmd(s),
		newSimulateCmd(s),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
