package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the event query index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the query index from the event log",
	Long: `Drop the SQLite index contents and repopulate from the full event
log. The index is a derived view, so a rebuild never loses data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		if a.index == nil {
			return fmt.Errorf("indexing is disabled (store.index: false)")
		}
		n, err := a.index.Rebuild(a.store)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d events\n", n)
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}
