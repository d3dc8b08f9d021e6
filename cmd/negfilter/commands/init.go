package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"negfilter/internal/config"
)

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file, or report settings it is missing",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	_, created, err := config.LoadOrInit(configPath)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "Created default config at %s. Set admin_secret and campaigns before serving.\n", configPath)
		return nil
	}
	missing, err := config.MissingKeys(configPath)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		fmt.Fprintf(out, "Config %s is complete.\n", configPath)
		return nil
	}
	fmt.Fprintf(out, "Config %s is missing: %s (defaults apply)\n", configPath, strings.Join(missing, ", "))
	return nil
}
