package pipeline

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ownership-cli/internal/aggregate"
	"github.com/sells-group/ownership-cli/internal/combine"
	"github.com/sells-group/ownership-cli/internal/impute"
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/reconcile"
	"github.com/sells-group/ownership-cli/internal/rollup"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

// classify partitions the directly reported pairs and logs the excluded
// ones for monitoring.
func (e *Engine) classify(ctx context.Context, en *env, st *Stats) error {
	return e.track(ctx, StageClassify, func() (*runlog.Result, error) {
		st.Partition = en.classifier.Partition(en.snap.Pairs())
		if n := len(st.Partition.Excluded); n > 0 {
			e.log.Warn("pipeline: pairs excluded from every scheme", zap.Int("excluded_pairs", n))
		}
		return &runlog.Result{Rows: int64(st.Partition.Total()), Metadata: partitionMeta(st.Partition)}, nil
	})
}

// runSchemes reconciles each scheme on its own universe, unions the
// results and, for the market value measure, aggregates the union to
// company level.
func (e *Engine) runSchemes(ctx context.Context, en *env) (*Output, error) {
	out := &Output{Stats: Stats{Schemes: map[model.Scheme]SchemeStats{}}}
	st := &out.Stats

	if err := e.classify(ctx, en, st); err != nil {
		return nil, err
	}

	var funds []model.Position
	err := e.track(ctx, StageRollup, func() (*runlog.Result, error) {
		roller := rollup.New(en.snap.FundLinks, en.valuer, e.policy.MaxWorkers)
		var err error
		funds, st.Rollup, err = roller.Fold(ctx, en.snap.FundShards)
		if err != nil {
			return nil, err
		}
		return &runlog.Result{Rows: int64(len(funds)), Metadata: rollupMeta(st.Rollup)}, nil
	})
	if err != nil {
		return nil, err
	}

	panels := make([][]model.Position, len(model.Schemes))
	err = e.track(ctx, StageSchemes, func() (*runlog.Result, error) {
		schemeStats := make([]SchemeStats, len(model.Schemes))
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range model.Schemes {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return eris.Wrapf(err, "pipeline: scheme %d", s)
				}
				panels[i], schemeStats[i] = e.resolveScheme(en, s, funds)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		rows := 0
		for i, s := range model.Schemes {
			st.Schemes[s] = schemeStats[i]
			rows += schemeStats[i].Rows
		}
		return &runlog.Result{Rows: int64(rows), Metadata: schemesMeta(st.Schemes)}, nil
	})
	if err != nil {
		return nil, err
	}

	err = e.track(ctx, StageCombine, func() (*runlog.Result, error) {
		out.Positions, st.Combine = combine.Union(panels...)
		if st.Combine.Conflicts > 0 {
			e.log.Warn("pipeline: schemes disagree on cells", zap.Int("conflicts", st.Combine.Conflicts))
		}
		return &runlog.Result{
			Rows:     int64(len(out.Positions)),
			Metadata: map[string]any{"duplicates": st.Combine.Duplicates, "conflicts": st.Combine.Conflicts},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if e.policy.Measure != model.MeasureMarketValue {
		return out, nil
	}

	err = e.track(ctx, StageAggregate, func() (*runlog.Result, error) {
		agg, caps := e.aggregator(en)
		st.Caps = caps
		ratios, rs := agg.Ratios(out.Positions)
		st.Ratios = rs
		if e.policy.ImputeFilings {
			ratios, st.Carry = e.carryFilings(en, ratios)
		}
		out.Panel, st.Aggregate = agg.Build(aggregate.Series{Filing: ratios})
		return &runlog.Result{Rows: int64(len(out.Panel)), Metadata: aggregateMeta(*st)}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveScheme produces one scheme's security-level panel. Schemes 1 and
// 2 resolve filings against stakes, scheme 2 falling back to fund sums.
// Schemes 3 and 4 forward-fill stakes over fund sums.
func (e *Engine) resolveScheme(en *env, s model.Scheme, funds []model.Position) ([]model.Position, SchemeStats) {
	in := reconcile.Predicate(en.classifier.In(s))
	var st SchemeStats
	var out []model.Position

	switch s {
	case model.SchemeFilerDomestic, model.SchemeFilerCrossBorder:
		var filings, stakes, fundIdx map[model.Key]reconcile.Observation
		filings, st.Filings = reconcile.Filings(en.snap.Filings, in, en.valuer)
		stakes, st.Stakes = reconcile.Stakes(en.snap.Stakes, in, nil, en.valuer)
		if s == model.SchemeFilerCrossBorder {
			fundIdx = reconcile.Index(funds, in)
		}
		out, st.Resolve = reconcile.Resolve(s, filings, stakes, fundIdx)
		out = e.clip(out)
	default:
		var allow func(string) bool
		if s == model.SchemeUKDisclosure {
			codes := e.policy.UKSourceCodes
			allow = func(code string) bool { return slices.Contains(codes, code) }
		}
		var stakes map[model.Key]reconcile.Observation
		stakes, st.Stakes = reconcile.Stakes(en.snap.Stakes, in, allow, en.valuer)
		fill := impute.GapFill{
			Scheme:     s,
			Windows:    e.policy.Windows,
			Start:      e.policy.Start,
			End:        e.policy.End,
			Securities: en.classifier.Security,
		}
		out, st.Fill = fill.Run(stakes, reconcile.Index(funds, in))
	}

	st.Rows = len(out)
	e.log.Debug("pipeline: scheme resolved", zap.Stringer("scheme", s), zap.Int("rows", st.Rows))
	return out, st
}

// carryFilings imputes filing-sourced ratios of filers across quarters in
// which they did not report. Carried positions never replace a cell that
// already has a value from another source.
func (e *Engine) carryFilings(en *env, ratios []model.Position) ([]model.Position, impute.CarryStats) {
	filed := make([]model.Position, 0, len(ratios))
	have := make(map[model.Key]struct{}, len(ratios))
	for _, p := range ratios {
		have[p.Key()] = struct{}{}
		if p.Source == model.SourceFiling {
			filed = append(filed, p)
		}
	}

	carry := impute.Carry{
		Window:      e.policy.FilingWindow,
		Termination: reconcile.TerminationQuarters(en.prices),
		Reported:    impute.ReportQuarters(en.snap.Filings, filingReport),
	}
	carried, st := carry.Run(filed)

	out := slices.Clone(ratios)
	for _, p := range carried {
		if !p.Imputed {
			continue
		}
		if _, ok := have[p.Key()]; ok {
			continue
		}
		out = append(out, p)
	}
	return out, st
}

func filingReport(f model.Filing) (string, time.Time) { return f.HolderID, f.ReportDate }

// fundReportQuarters collects the report quarters of every fund across
// all shards.
func fundReportQuarters(shards [][]model.FundHolding) map[string]map[quarter.Quarter]struct{} {
	out := map[string]map[quarter.Quarter]struct{}{}
	for _, shard := range shards {
		for id, qs := range impute.ReportQuarters(shard, func(h model.FundHolding) (string, time.Time) {
			return h.FundID, h.ReportDate
		}) {
			if have, ok := out[id]; ok {
				maps.Copy(have, qs)
				continue
			}
			out[id] = qs
		}
	}
	return out
}
