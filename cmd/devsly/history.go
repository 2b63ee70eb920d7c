package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	devsly "github.com/devsly/devsly-go"
	"github.com/devsly/devsly-go/internal/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [test-id]",
	Short: "List recorded runs, or show one run's report",
	Long: `Read runs recorded by "devsly run --history".

Without arguments the most recent runs are listed. With a test ID the
stored report of that run is printed.

Example:
  devsly history --db runs.db
  devsly history --db runs.db 5f0c...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("db", "devsly-history.db", "SQLite history file")
	historyCmd.Flags().IntP("limit", "n", 25, "number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("db")
	hist, err := history.Open(path)
	if err != nil {
		return err
	}
	defer hist.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := hist.Get(ctx, args[0])
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("no recorded run with id %s", args[0])
		}
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(out, run)
		}
		fmt.Fprintf(out, "%s  %s  %s\n", run.Name, run.TargetURL, run.StartedAt.Format("2006-01-02 15:04:05"))
		if run.Error != "" {
			fmt.Fprintf(out, "  Wait error:   %s\n", run.Error)
		}
		if run.ResultJSON == "" {
			fmt.Fprintf(out, "  State:        %s (no report recorded)\n", run.State)
			return nil
		}
		var result devsly.TestResult
		if err := json.Unmarshal([]byte(run.ResultJSON), &result); err != nil {
			return fmt.Errorf("stored report is corrupt: %w", err)
		}
		if result.TestID == "" {
			result.TestID = run.ID
		}
		printResult(out, &result)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := hist.List(ctx, limit)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return printJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tNAME\tTEST ID\tSTATE\tDURATION")
	for _, run := range runs {
		took := "-"
		if run.FinishedAt != nil {
			took = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"), run.Name, run.ID, run.State, took)
	}
	return tw.Flush()
}
