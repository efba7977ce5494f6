package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/daemon"
	"github.com/delaney/hookline/internal/event"
)

var emitCmd = &cobra.Command{
	Use:   "emit [event-type]",
	Short: "Append an event to the log and run matching hooks",
	Long: `Emit an event: validate, enrich, append to the event log, index,
and dispatch matching hooks.

Either name the event type and context via flags, or pipe a full event
JSON document:

  hookline emit task.completed --task task-1
  cat event.json | hookline emit --stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromStdin, _ := cmd.Flags().GetBool("stdin")
		noDispatch, _ := cmd.Flags().GetBool("no-dispatch")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		e, err := buildEvent(cmd, args, fromStdin)
		if err != nil {
			return err
		}

		pipeline := a.pipeline
		if noDispatch {
			pipeline = daemon.NewPipeline(a.store, a.index, nil, a.cfg.AgentID)
		}

		off, err := pipeline.Ingest(cmd.Context(), e)
		if err != nil {
			return err
		}
		fmt.Printf("%s appended at %s:%d\n", e.EventID, off.File, off.Line)
		return nil
	},
}

func buildEvent(cmd *cobra.Command, args []string, fromStdin bool) (*event.Event, error) {
	if fromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		e, err := event.Parse(data)
		if err != nil {
			return nil, err
		}
		return &e, nil
	}

	if len(args) != 1 {
		return nil, fmt.Errorf("event type required unless --stdin is set")
	}

	taskID, _ := cmd.Flags().GetString("task")
	traceID, _ := cmd.Flags().GetString("trace")
	metadataJSON, _ := cmd.Flags().GetString("metadata")

	e := &event.Event{EventType: args[0]}
	if taskID != "" {
		e.Context = &event.Context{TaskID: taskID}
	}
	if traceID != "" {
		e.Correlation = &event.Correlation{TraceID: traceID}
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("parsing --metadata: %w", err)
		}
	}
	return e, nil
}

func init() {
	emitCmd.Flags().Bool("stdin", false, "Read a full event JSON document from stdin")
	emitCmd.Flags().Bool("no-dispatch", false, "Append without running hooks")
	emitCmd.Flags().String("task", "", "Task ID for the event context")
	emitCmd.Flags().String("trace", "", "Trace ID for event correlation")
	emitCmd.Flags().String("metadata", "", "Event metadata as JSON")
	rootCmd.AddCommand(emitCmd)
}
