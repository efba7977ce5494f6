package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/audit"
	"github.com/delaney/hookline/internal/ui"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent hook audit entries",
	Long: `Show recent hook audit entries, oldest first.

Use --follow for a live view that refreshes as hooks run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hook, _ := cmd.Flags().GetString("hook")
		status, _ := cmd.Flags().GetString("status")
		eventID, _ := cmd.Flags().GetString("event")
		last, _ := cmd.Flags().GetInt("last")
		follow, _ := cmd.Flags().GetBool("follow")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		filter := audit.Filter{
			Hook:    hook,
			Status:  audit.Status(status),
			EventID: eventID,
			Last:    last,
		}

		if follow {
			_, err := tea.NewProgram(ui.New(a.audit, filter)).Run()
			return err
		}

		entries, err := a.audit.Tail(filter)
		if err != nil {
			return err
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  %-20s %-8s exit=%-3d %6dms  %s",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.Hook, e.Status, e.ExitCode, e.DurationMS, e.EventID)
			if e.Error != "" {
				line += "  " + e.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	tailCmd.Flags().String("hook", "", "Filter by hook name")
	tailCmd.Flags().String("status", "", "Filter by status (started, success, failed, timeout, error)")
	tailCmd.Flags().String("event", "", "Filter by event ID")
	tailCmd.Flags().IntP("last", "n", 50, "Number of entries to show")
	tailCmd.Flags().BoolP("follow", "f", false, "Follow the audit log")
	rootCmd.AddCommand(tailCmd)
}
