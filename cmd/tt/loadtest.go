package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasktree/internal/loadtest"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "maint",
	Short:   "Run concurrent mutations against a scratch list",
	Long: `Create a scratch list, seed it, and run concurrent inserts, deletes and
indentation toggles against it while readers list it. The list is verified
afterwards and removed unless --keep is given.

Rejected requests (a task deleted by another worker, indenting the head)
are expected and reported separately from errors.

Examples:
  tt loadtest
  tt loadtest --workers 32 --ops 200 --tasks 500
  tt loadtest --db /tmp/load.db --keep`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		workers, _ := cmd.Flags().GetInt("workers")
		ops, _ := cmd.Flags().GetInt("ops")
		numTasks, _ := cmd.Flags().GetInt("tasks")
		readers, _ := cmd.Flags().GetInt("readers")
		seed, _ := cmd.Flags().GetInt64("seed")
		keep, _ := cmd.Flags().GetBool("keep")

		ctx := cmd.Context()
		engine, closeFn := mustEngine(ctx)
		defer closeFn()

		title := fmt.Sprintf("loadtest %s", time.Now().Format(time.DateTime))
		tl, err := loadtest.CreateTestList(ctx, engine, title, numTasks)
		if err != nil {
			fatal(err)
		}
		if !keep {
			defer func() {
				if err := engine.Store().DeleteList(ctx, tl.ListID); err != nil {
					logger.Warn().Err(err).Str("list", tl.ListID).Msg("failed to remove scratch list")
				}
			}()
		}

		fmt.Fprintf(os.Stderr, "Seeded list %s with %d tasks\n", tl.ListID, numTasks)
		fmt.Fprintf(os.Stderr, "Running %d writers x %d ops, %d readers...\n", workers, ops, readers)

		type result struct {
			stats *loadtest.LatencyStats
			err   error
		}
		readDone := make(chan result, 1)
		go func() {
			stats, err := tl.RunConcurrentReads(ctx, readers, ops)
			readDone <- result{stats, err}
		}()

		start := time.Now()
		writeStats, writeErr := tl.RunConcurrentMutations(ctx, workers, ops, seed)
		elapsed := time.Since(start)
		reads := <-readDone

		if jsonOutput {
			printJSON(map[string]any{
				"list_id":  tl.ListID,
				"elapsed":  elapsed.String(),
				"writes":   writeStats,
				"reads":    reads.stats,
				"final":    tl.Len(),
				"verified": writeErr == nil,
			})
		} else {
			fmt.Printf("\nWrites (%v):\n", elapsed.Round(time.Millisecond))
			writeStats.PrintStats(os.Stdout)
			fmt.Printf("\nReads:\n")
			reads.stats.PrintStats(os.Stdout)
			fmt.Printf("\nFinal list size: %d\n", tl.Len())
		}

		if writeErr != nil {
			fatal(writeErr)
		}
		if reads.err != nil {
			fatal(reads.err)
		}
	},
}

func init() {
	loadtestCmd.Flags().Int("workers", 16, "Concurrent writers")
	loadtestCmd.Flags().Int("ops", 50, "Operations per writer and reads per reader")
	loadtestCmd.Flags().Int("tasks", 200, "Tasks to seed the list with")
	loadtestCmd.Flags().Int("readers", 4, "Concurrent readers")
	loadtestCmd.Flags().Int64("seed", 42, "Random seed for the operation mix")
	loadtestCmd.Flags().Bool("keep", false, "Keep the scratch list")
	rootCmd.AddCommand(loadtestCmd)
}
