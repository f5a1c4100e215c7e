package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/ownership-cli/internal/monitoring"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

var (
	statusLimit   int
	statusRun     string
	statusSummary bool
	statusCheck   bool
	statusWatch   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent pipeline runs",
	Long:  "Lists the most recent stage entries from the run log, or one line per run with --summary. --check evaluates run health over the monitoring lookback window and posts alerts to the configured webhook; --watch repeats the check until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if statusCheck || statusWatch {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			if statusWatch {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				checker.Run(ctx)
				return nil
			}
			return runCheck(ctx, os.Stdout, checker)
		}

		entries, err := st.Recent(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		entries = filterRun(entries, statusRun)

		if len(entries) == 0 {
			zap.L().Info("no run log entries found, run 'ownership-cli run' first")
			return nil
		}

		if statusSummary {
			formatRunSummaries(os.Stdout, summarizeRuns(entries))
			return nil
		}
		formatRunLog(os.Stdout, entries)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 50, "max number of stage entries to read")
	statusCmd.Flags().StringVar(&statusRun, "run", "", "only show the run whose id starts with this prefix")
	statusCmd.Flags().BoolVar(&statusSummary, "summary", false, "one line per run instead of per stage")
	statusCmd.Flags().BoolVar(&statusCheck, "check", false, "evaluate run health and send alerts; exits non-zero when any alert fires")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "repeat --check every monitoring.check_interval_secs")
	rootCmd.AddCommand(statusCmd)
}

// runCheck prints the health snapshot and any alerts, and fails when an
// alert fired.
func runCheck(ctx context.Context, out io.Writer, checker *monitoring.Checker) error {
	snap, alerts, err := checker.Check(ctx)
	if err != nil {
		return eris.Wrap(err, "status: check")
	}
	formatHealth(out, snap, alerts)
	if len(alerts) > 0 {
		return eris.Errorf("status: %d alert(s) raised", len(alerts))
	}
	return nil
}

// formatHealth writes a health snapshot and its alerts to w.
func formatHealth(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	p := message.NewPrinter(language.English)
	last := "never"
	if snap.LastComplete != nil {
		last = snap.LastComplete.Format("2006-01-02 15:04")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Lookback:\t%dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (complete %d, failed %d, open %d)\n",
		snap.Runs, snap.RunsComplete, snap.RunsFailed, snap.RunsOpen)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.FailRate*100)
	_, _ = fmt.Fprintf(w, "Last complete:\t%s\n", last)
	_, _ = p.Fprintf(w, "Excluded pairs:\t%d\n", snap.ExcludedPairs)
	_, _ = p.Fprintf(w, "Shrunk cells:\t%d\n", snap.ShrunkCells)
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	_, _ = fmt.Fprintln(out, "\nAlerts:")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}

// filterRun keeps entries whose run id starts with prefix.
func filterRun(entries []runlog.Entry, prefix string) []runlog.Entry {
	if prefix == "" {
		return entries
	}
	var out []runlog.Entry
	for _, e := range entries {
		if strings.HasPrefix(e.RunID.String(), prefix) {
			out = append(out, e)
		}
	}
	return out
}

// formatRunLog writes a tabular list of stage entries to w.
func formatRunLog(out io.Writer, entries []runlog.Entry) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTAGE\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "---\t-----\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.Duration().Round(time.Millisecond).String()
		}
		_, _ = p.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(e.RunID.String()),
			e.Stage,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.Rows,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

// runSummary folds the stage entries of one run.
type runSummary struct {
	RunID    string
	Started  time.Time
	Ended    time.Time
	Stages   int
	Failed   int
	Running  int
	LastStep string
}

// Status is failed if any stage failed, running while any stage is open,
// else complete.
func (s runSummary) Status() string {
	switch {
	case s.Failed > 0:
		return runlog.StatusFailed
	case s.Running > 0:
		return runlog.StatusRunning
	}
	return runlog.StatusComplete
}

// summarizeRuns groups entries by run, most recent run first.
func summarizeRuns(entries []runlog.Entry) []runSummary {
	byRun := map[string]*runSummary{}
	for _, e := range entries {
		id := e.RunID.String()
		s, ok := byRun[id]
		if !ok {
			s = &runSummary{RunID: id, Started: e.StartedAt}
			byRun[id] = s
		}
		s.Stages++
		if e.StartedAt.Before(s.Started) {
			s.Started = e.StartedAt
		}
		switch e.Status {
		case runlog.StatusFailed:
			s.Failed++
		case runlog.StatusRunning:
			s.Running++
		}
		if e.CompletedAt != nil && e.CompletedAt.After(s.Ended) {
			s.Ended = *e.CompletedAt
			s.LastStep = e.Stage
		}
	}

	out := make([]runSummary, 0, len(byRun))
	for _, s := range byRun {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b runSummary) int {
		if c := b.Started.Compare(a.Started); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID, b.RunID)
	})
	return out
}

// formatRunSummaries writes one line per run to w.
func formatRunSummaries(out io.Writer, runs []runSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tDURATION\tSTAGES\tLAST STAGE")
	_, _ = fmt.Fprintln(w, "---\t------\t-------\t--------\t------\t----------")
	for _, s := range runs {
		dur := "-"
		if !s.Ended.IsZero() {
			dur = s.Ended.Sub(s.Started).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(s.RunID),
			s.Status(),
			s.Started.Format("2006-01-02 15:04"),
			dur,
			s.Stages,
			s.LastStep,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to max bytes, marking the cut with "...".
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
