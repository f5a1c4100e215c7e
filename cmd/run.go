package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/ownership-cli/internal/export"
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/pipeline"
	"github.com/sells-group/ownership-cli/internal/runlog"
	"github.com/sells-group/ownership-cli/internal/snapshot"
	"github.com/sells-group/ownership-cli/internal/store"
)

var (
	runMethod  string
	runMeasure string
	runOut     string
)

// stagePersist is journalled after the pipeline stages.
const stagePersist = "persist"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the ownership panel from the snapshot",
	Long:  "Loads the configured snapshot, runs the reconciliation pipeline, writes both panels to the store and optionally to a CSV or XLSX file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyRunFlags(cmd)
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		policy, err := pipeline.PolicyFromConfig(cfg.Ownership)
		if err != nil {
			return err
		}

		snap, err := loadSnapshot(ctx)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run := runlog.NewRun(st)
		zap.L().Info("run started", zap.String("run_id", run.ID.String()))

		out, err := pipeline.New(policy, run).Run(ctx, snap)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		if err := persist(ctx, st, run, store.Span{From: policy.Start, To: policy.End}, out); err != nil {
			return err
		}

		if runOut != "" {
			files, err := export.ToFile(runOut, export.Result{Panel: out.Panel, Positions: out.Positions})
			if err != nil {
				return eris.Wrap(err, "export run")
			}
			zap.L().Info("panel exported", zap.Strings("files", files))
		}

		formatRunSummary(os.Stdout, run, policy, out)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runMethod, "method", "", "override ownership.method (scheme, ferreira_matos)")
	runCmd.Flags().StringVar(&runMeasure, "measure", "", "override ownership.measure (market_value, adjusted_shares)")
	runCmd.Flags().StringVar(&runOut, "out", "", "also write the panel to this .csv or .xlsx file")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags folds explicitly set flags into the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("method") {
		cfg.Ownership.Method = runMethod
	}
	if cmd.Flags().Changed("measure") {
		cfg.Ownership.Measure = runMeasure
	}
}

// loadSnapshot reads the configured snapshot and checks it holds the
// tables every run needs.
func loadSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	src, err := snapshot.Open(cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	snap, err := src.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "load snapshot")
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// persist writes both panels as one journalled stage, replacing whatever
// earlier runs left in span.
func persist(ctx context.Context, st store.Store, run *runlog.Run, span store.Span, out *pipeline.Output) error {
	id, jerr := run.Start(ctx, stagePersist)
	if jerr != nil {
		zap.L().Warn("failed to record persist start", zap.Error(jerr))
	}

	fail := func(err error) error {
		if jerr == nil {
			_ = run.Fail(ctx, id, err.Error())
		}
		return err
	}

	panelRows, err := st.WritePanel(ctx, run.ID, span, out.Panel)
	if err != nil {
		return fail(eris.Wrap(err, "write panel"))
	}
	posRows, err := st.WriteSecurityPanel(ctx, run.ID, span, out.Positions)
	if err != nil {
		return fail(eris.Wrap(err, "write security panel"))
	}

	zap.L().Info("panels written",
		zap.Int64("panel_rows", panelRows),
		zap.Int64("security_rows", posRows),
	)
	if jerr == nil {
		res := &runlog.Result{
			Rows:     panelRows + posRows,
			Metadata: map[string]any{"panel": panelRows, "security_panel": posRows},
		}
		if err := run.Complete(ctx, id, res); err != nil {
			zap.L().Warn("failed to record persist completion", zap.Error(err))
		}
	}
	return nil
}

// formatRunSummary writes a short human-readable report of a run to w.
func formatRunSummary(out io.Writer, run *runlog.Run, policy pipeline.Policy, res *pipeline.Output) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Method:\t%s (%s)\n", policy.Method, policy.Measure)
	_, _ = fmt.Fprintf(w, "Quarters:\t%s - %s\n", policy.Start, policy.End)
	_, _ = p.Fprintf(w, "Security rows:\t%d\n", len(res.Positions))
	_, _ = p.Fprintf(w, "Panel rows:\t%d\n", len(res.Panel))
	for _, s := range model.Schemes {
		if n, ok := res.Stats.Partition.Counts[s]; ok {
			_, _ = p.Fprintf(w, "  %s pairs:\t%d\n", s, n)
		}
	}
	if n := len(res.Stats.Partition.Excluded); n > 0 {
		_, _ = p.Fprintf(w, "Excluded pairs:\t%d\n", n)
	}
	if res.Stats.Aggregate.Shrunk > 0 {
		_, _ = p.Fprintf(w, "Rescaled company quarters:\t%d\n", res.Stats.Aggregate.Shrunk)
	}
	_ = w.Flush()
}
