package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/formpoll/internal/notify"
	"github.com/nhle/formpoll/internal/reconcile"
	"github.com/nhle/formpoll/internal/sync"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run a single reconciliation batch and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		worker := reconcile.NewWorker(a.sessions, a.store, notify.NewHub(a.logger), buildRegistry(a.cfg),
			reconcile.WithFetchTimeout(a.cfg.Poll.FetchTimeout()),
			reconcile.WithLogger(a.logger),
		)
		poller := sync.New(a.store, worker, a.cfg.Poll.Interval(), a.cfg.Poll.Concurrency, a.logger)

		res, err := poller.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, successLine(fmt.Sprintf("checked %d form(s)", res.Checked)))
		printStatus(out, "completed", "%d", res.Completed)
		printStatus(out, "failed", "%d", res.Failed)
		if res.Defects > 0 {
			printStatus(out, "defects", "%d", res.Defects)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
