package commands

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/config"
	"github.com/delaney/hookline/internal/hooks"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Inspect configured hooks",
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured hooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		parsed, err := hooks.Load(cfg.Manifest, cfg.HooksDir)
		if err != nil {
			return err
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Name", "Events", "Script", "Timeout", "Fail Mode"})
		for _, h := range parsed.Hooks {
			patterns := make([]string, len(h.Events))
			for i, spec := range h.Events {
				patterns[i] = spec.Type
				if len(spec.Filter) > 0 {
					patterns[i] += " (filtered)"
				}
			}
			tw.AppendRow(table.Row{
				h.Name,
				strings.Join(patterns, ", "),
				h.Script,
				h.Timeout,
				h.FailMode,
			})
		}
		tw.Render()
		return nil
	},
}

func init() {
	hooksCmd.AddCommand(hooksListCmd)
	rootCmd.AddCommand(hooksCmd)
}
