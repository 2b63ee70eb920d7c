package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	devsly "github.com/devsly/devsly-go"
	"github.com/devsly/devsly-go/config"
	"github.com/devsly/devsly-go/internal/history"
	"github.com/devsly/devsly-go/internal/server"
	"github.com/devsly/devsly-go/internal/store"
	"github.com/spf13/cobra"
)

// runCmd starts every test in a suite and waits for all of them.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a suite of load tests",
	Long: `Run every load test described in a suite file.

The command will:
  - Load and validate the suite, expanding matrices
  - Start each test through the Devsly API
  - Poll all tests concurrently until they finish or time out
  - Print a summary table

With --listen (or listen: in the suite) live progress is served as JSON
and Server-Sent Events, and the server keeps running after the suite
finishes until interrupted (Ctrl+C) or SIGTERM.

With --history (or history: in the suite) every run is recorded in a
SQLite database; see "devsly history".

Example:
  devsly run -c suite.yaml
  devsly run -c suite.yaml --listen :8080 --history runs.db`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	runCmd.Flags().String("listen", "", "address to serve live progress on, e.g. :8080")
	runCmd.Flags().String("history", "", "SQLite file to record runs in")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("history"); v != "" {
		cfg.History = v
	}

	tests, err := config.BuildTests(cfg)
	if err != nil {
		return fmt.Errorf("failed to build tests: %w", err)
	}

	logger.Info("config loaded",
		"tests", len(cfg.Tests),
		"matrices", len(cfg.Matrices),
		"total", len(tests),
	)

	client, err := newClient(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := store.NewMemoryStore()
	r := &runner{client: client, jobs: jobs, logger: logger}

	if cfg.History != "" {
		hist, err := history.Open(cfg.History)
		if err != nil {
			return err
		}
		defer hist.Close()
		r.history = hist
	}

	var srv *server.Server
	if cfg.Listen != "" {
		srv = server.NewServer(jobs, cfg.Listen, logger)
		if err := srv.Start(ctx); err != nil {
			return err
		}
	}

	summaries := r.run(ctx, tests)
	writeSummary(cmd, summaries)

	if srv != nil {
		logger.Info("suite finished, serving results until interrupted", "addr", srv.Addr().String())
		<-ctx.Done()
		<-srv.Done()
		logger.Info("shutdown complete")
	}

	if n := countUnsuccessful(summaries); n > 0 {
		return fmt.Errorf("%d of %d tests did not complete", n, len(summaries))
	}
	return nil
}

func writeSummary(cmd *cobra.Command, summaries []summary) {
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		_ = printJSON(out, summaries)
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTEST ID\tSTATE\tREQUESTS\tRPS\tP95\tERROR")
	for _, s := range summaries {
		requests, rps, p95 := "-", "-", "-"
		if res := s.Result; res != nil {
			requests = formatCount(res.TotalRequests)
			if res.RequestsPerSecond != nil {
				rps = fmt.Sprintf("%.1f", *res.RequestsPerSecond)
			}
			if res.Percentiles != nil {
				p95 = fmt.Sprintf("%.0fms", res.Percentiles.P95)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Name, orDash(s.TestID), orDash(s.State), requests, rps, p95, orDash(s.Error))
	}
	_ = tw.Flush()
}

func countUnsuccessful(summaries []summary) int {
	n := 0
	for _, s := range summaries {
		if s.Error != "" || devsly.ParseState(s.State) != devsly.StateCompleted {
			n++
		}
	}
	return n
}
