package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/event"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run matching hooks for an event without persisting it",
	Long: `Read a full event JSON document from stdin and run every matching
hook. The event is validated and enriched but never written to the
event log; hook runs are still audited.

Useful for re-driving hooks against an event already in the log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		e, err := event.Parse(data)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if e.AgentID == "" {
			e.AgentID = a.cfg.AgentID
		}
		event.Enrich(&e)
		if err := event.Validate(&e); err != nil {
			return err
		}

		res, err := a.dispatcher.Dispatch(cmd.Context(), &e)
		if res != nil {
			for _, r := range res.Results {
				fmt.Printf("%s: %s (exit %d, %s)\n", r.Hook, r.Status, r.ExitCode, r.Duration)
			}
			if len(res.Results) == 0 {
				fmt.Println("no hooks match")
			}
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}
