package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/config"
	"github.com/delaney/hookline/internal/hooks"
)

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Validate a hook manifest",
	Long: `Validate a hook manifest without executing anything.

Checks names, event patterns, filters, timeouts, fail modes, and that
every script resolves inside the hooks directory. Any error here means
the engine would disable all hooks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		manifest := cfg.Manifest
		if len(args) == 1 {
			manifest = args[0]
		}

		parsed, err := hooks.Load(manifest, cfg.HooksDir)
		if err != nil {
			return err
		}

		fmt.Printf("%s: ok (%d hooks)\n", manifest, len(parsed.Hooks))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
