package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/daemon"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the inbox daemon",
	Long: `Run hookline as a daemon: watch the inbox directory for incoming
event files, ingest and dispatch them, and compress expired log
segments every midnight UTC.

Producers drop one JSON event per *.json file into the inbox; rename
into place for atomic delivery.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d := daemon.New(a.cfg.InboxDir(), a.pipeline, a.store)
		if err := d.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
