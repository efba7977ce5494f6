package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/event"
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show the decision log",
	Long: `Show decision-namespace events from the decision view, oldest
first. The view is derived from the event log; it is written on ingest
and regenerated by view rebuilds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		last, _ := cmd.Flags().GetInt("last")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		events, err := a.store.ReadDecisions()
		if err != nil {
			return err
		}
		if last > 0 && len(events) > last {
			events = events[len(events)-last:]
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Timestamp", "Event Type", "Decision ID", "Agent", "Summary"})
		for i := range events {
			e := &events[i]
			tw.AppendRow(table.Row{
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.EventType,
				decisionID(e),
				e.AgentID,
				decisionSummary(e),
			})
		}
		tw.Render()
		return nil
	},
}

func decisionID(e *event.Event) string {
	if e.Context != nil {
		return e.Context.DecisionID
	}
	return ""
}

// decisionSummary picks a human-readable line out of the decision
// payload. Payload shapes vary by producer, so try the common keys.
func decisionSummary(e *event.Event) string {
	for _, key := range []string{"summary", "decision", "title", "reason"} {
		if v, ok := e.Decision[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func init() {
	decisionsCmd.Flags().IntP("last", "n", 50, "Number of decisions to show")
	rootCmd.AddCommand(decisionsCmd)
}
