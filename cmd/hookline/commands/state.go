package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state <context-key>",
	Short: "Show the current workflow state for a context key",
	Long: `Reconstruct the workflow state for a context key by replaying its
event history. Invalid transitions in the history are listed; they were
reported at fold time but never applied.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		st, invalid, err := a.machine.CurrentState(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s: %s\n", args[0], st)
		if len(invalid) > 0 {
			fmt.Printf("\n%d invalid transition(s):\n", len(invalid))
			for _, t := range invalid {
				fmt.Printf("  %s\n", t)
			}
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <context-key>",
	Short: "Show the ordered event history for a context key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		events, err := a.machine.Replay(args[0])
		if err != nil {
			return err
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Timestamp", "Event Type", "Event ID", "Agent"})
		for _, e := range events {
			tw.AppendRow(table.Row{
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.EventType,
				e.EventID,
				e.AgentID,
			})
		}
		tw.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(replayCmd)
}
