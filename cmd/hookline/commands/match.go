package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/config"
	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/hooks"
)

var matchCmd = &cobra.Command{
	Use:   "match <event-type>",
	Short: "Show which hooks an event would trigger",
	Long: `Dry-run the matcher: print the hooks an event of the given type
would trigger, without executing anything.

Context fields for filter evaluation can be supplied as JSON:

  hookline match task.completed --context '{"task_id":"task-1"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contextJSON, _ := cmd.Flags().GetString("context")
		metadataJSON, _ := cmd.Flags().GetString("metadata")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		parsed, err := hooks.Load(cfg.Manifest, cfg.HooksDir)
		if err != nil {
			return err
		}

		e := &event.Event{
			SchemaVersion: event.CurrentSchemaVersion,
			EventType:     args[0],
			EventID:       "dry-run",
			Timestamp:     time.Now().UTC(),
			AgentID:       cfg.AgentID,
		}
		if contextJSON != "" {
			var ctx event.Context
			if err := json.Unmarshal([]byte(contextJSON), &ctx); err != nil {
				return fmt.Errorf("parsing --context: %w", err)
			}
			e.Context = &ctx
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
				return fmt.Errorf("parsing --metadata: %w", err)
			}
		}

		matched := hooks.Match(parsed, e)
		if len(matched) == 0 {
			fmt.Println("no hooks match")
			return nil
		}
		for _, h := range matched {
			fmt.Printf("%s -> %s (timeout %ds, fail_mode %s)\n", h.Name, h.Script, h.Timeout, h.FailMode)
		}
		return nil
	},
}

func init() {
	matchCmd.Flags().String("context", "", "Event context as JSON")
	matchCmd.Flags().String("metadata", "", "Event metadata as JSON")
	rootCmd.AddCommand(matchCmd)
}
