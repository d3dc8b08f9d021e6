package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"negfilter/internal/config"
)

var (
	configPath       string
	logLevelOverride string

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg config.Config
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "negfilter",
		Short:         "Filter search term reports against negative keyword lists",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				cfg = config.Default()
				return configureLogger(cfg.Log, logLevelOverride)
			}
			loaded, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return configureLogger(cfg.Log, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "negfilter.json", "Path to config file")
	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewFilterCmd(),
		NewRulesCmd(),
		NewBatchCmd(),
		NewServeCmd(),
		NewWatchCmd(),
	)

	return cmd
}

// loadConfig falls back to defaults when the file does not exist, so a
// one-off filter run needs no setup.
func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(path)
}
