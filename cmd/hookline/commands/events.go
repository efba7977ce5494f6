package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/index"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the event log",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed events, newest first",
	Long: `List events from the query index, newest first. Filters combine
with AND. --since accepts a duration (e.g. 24h, 90m) or an RFC 3339
timestamp.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType, _ := cmd.Flags().GetString("type")
		namespace, _ := cmd.Flags().GetString("namespace")
		task, _ := cmd.Flags().GetString("task")
		trace, _ := cmd.Flags().GetString("trace")
		agent, _ := cmd.Flags().GetString("agent")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("last")

		q, err := buildEventsQuery(eventType, namespace, task, trace, agent, since, limit, time.Now())
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if a.index == nil {
			return fmt.Errorf("indexing is disabled (store.index: false)")
		}
		rows, err := a.index.Search(q)
		if err != nil {
			return err
		}
		total, err := a.index.Count()
		if err != nil {
			return err
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Timestamp", "Event Type", "Event ID", "Context", "Agent"})
		for _, r := range rows {
			tw.AppendRow(table.Row{
				r.Timestamp.Format("2006-01-02 15:04:05"),
				r.EventType,
				r.EventID,
				r.ContextKey,
				r.AgentID,
			})
		}
		tw.Render()
		fmt.Printf("%d of %d indexed events\n", len(rows), total)
		return nil
	},
}

// buildEventsQuery turns the list flags into an index query. since is
// either a duration back from now or an absolute RFC 3339 timestamp.
func buildEventsQuery(eventType, namespace, contextKey, traceID, agentID, since string, limit int, now time.Time) (index.Query, error) {
	q := index.Query{
		EventType:  eventType,
		Namespace:  namespace,
		ContextKey: contextKey,
		TraceID:    traceID,
		AgentID:    agentID,
		Limit:      limit,
	}
	if since == "" {
		return q, nil
	}
	if d, err := time.ParseDuration(since); err == nil {
		q.Since = now.Add(-d)
		return q, nil
	}
	ts, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return index.Query{}, fmt.Errorf("invalid --since %q: want a duration or RFC 3339 timestamp", since)
	}
	q.Since = ts
	return q, nil
}

func init() {
	eventsListCmd.Flags().String("type", "", "Filter by exact event type")
	eventsListCmd.Flags().String("namespace", "", "Filter by namespace (first event type segment)")
	eventsListCmd.Flags().String("task", "", "Filter by context key (task or trace)")
	eventsListCmd.Flags().String("trace", "", "Filter by trace ID")
	eventsListCmd.Flags().String("agent", "", "Filter by agent ID")
	eventsListCmd.Flags().String("since", "", "Only events at or after this time (duration or RFC 3339)")
	eventsListCmd.Flags().IntP("last", "n", 50, "Maximum number of events to show")
	eventsCmd.AddCommand(eventsListCmd)
	rootCmd.AddCommand(eventsCmd)
}
