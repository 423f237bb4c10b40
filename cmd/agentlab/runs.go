package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.Open(cfg.Memory.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := store.NewCheckpointStore(db).List(context.Background(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs yet. Start one with 'agentlab run <task>'.")
			return nil
		}

		heading.Printf("%-36s  %-10s  %-5s  %-16s  %s\n", "RUN", "STATE", "STEP", "UPDATED", "TASK")
		for _, r := range runs {
			fmt.Printf("%-36s  %-10s  %2d/%-2d  %-16s  %s\n",
				r.RunID, r.State, r.Cursor, len(r.Steps), r.UpdatedAt.Format("2006-01-02 15:04"), shorten(r.Task, 60))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
