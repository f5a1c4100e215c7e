package pipeline

import (
	"cmp"
	"context"
	"slices"

	"github.com/sells-group/ownership-cli/internal/aggregate"
	"github.com/sells-group/ownership-cli/internal/impute"
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/reconcile"
	"github.com/sells-group/ownership-cli/internal/rollup"
	"github.com/sells-group/ownership-cli/internal/runlog"
)

// runFerreiraMatos builds the filing series from every filing, rolled up
// from filer to institution, and the fund series from fund reports rolled
// up to managing institution. Both are imputed at reporter level before
// the roll-up and merged per company by the aggregator.
func (e *Engine) runFerreiraMatos(ctx context.Context, en *env) (*Output, error) {
	out := &Output{}
	st := &out.Stats

	if err := e.classify(ctx, en, st); err != nil {
		return nil, err
	}

	agg, caps := e.aggregator(en)
	st.Caps = caps
	carry := impute.Carry{Window: e.policy.FilingWindow, Termination: reconcile.TerminationQuarters(en.prices)}

	var filingSeries []model.Position
	err := e.track(ctx, StageFilings, func() (*runlog.Result, error) {
		filings, fst := reconcile.Filings(en.snap.Filings, reconcile.All, en.valuer)
		ps, _ := reconcile.Resolve(model.SchemeNone, filings, nil, nil)
		ratios, rs := agg.Ratios(e.clip(ps))
		st.Ratios = rs
		if e.policy.ImputeFilings {
			fc := carry
			fc.Reported = impute.ReportQuarters(en.snap.Filings, filingReport)
			ratios, st.Carry = fc.Run(ratios)
		}
		parent := rollup.Links(rollup.FilerLinks(en.snap.FilerLinks), true)
		filingSeries, st.FilerSum = rollup.Sum(ratios, parent, model.SourceFiling)
		return &runlog.Result{
			Rows: int64(len(filingSeries)),
			Metadata: map[string]any{
				"filings":         fst.Input,
				"filing_no_value": fst.NoValue,
				"ratio_no_cap":    rs.NoCap,
				"carried":         st.Carry.Carried,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var fundSeries []model.Position
	err = e.track(ctx, StageFunds, func() (*runlog.Result, error) {
		roller := rollup.New(en.snap.FundLinks, en.valuer, e.policy.MaxWorkers)
		cells, err := roller.Latest(ctx, en.snap.FundShards)
		if err != nil {
			return nil, err
		}
		perFund, noValue := roller.FundPositions(cells)
		ratios, rs := agg.Ratios(e.clip(perFund))
		st.FundRatios = rs
		if e.policy.ImputeFilings {
			fc := carry
			fc.Reported = fundReportQuarters(en.snap.FundShards)
			ratios, st.FundCarry = fc.Run(ratios)
		}

		var sum rollup.SumStats
		fundSeries, sum = rollup.Sum(ratios, roller.Institution, model.SourceFundSum)
		st.Rollup = rollup.Stats{
			Shards:        len(en.snap.FundShards),
			FundCells:     len(cells),
			NoValue:       noValue,
			UnmappedFunds: sum.Unmapped,
			Cells:         len(fundSeries),
			NonPositive:   sum.NonPositive,
		}
		for _, s := range en.snap.FundShards {
			st.Rollup.Rows += len(s)
		}
		meta := rollupMeta(st.Rollup)
		meta["carried"] = st.FundCarry.Carried
		return &runlog.Result{Rows: int64(len(fundSeries)), Metadata: meta}, nil
	})
	if err != nil {
		return nil, err
	}

	err = e.track(ctx, StageAggregate, func() (*runlog.Result, error) {
		out.Panel, st.Aggregate = agg.Build(aggregate.Series{Filing: filingSeries, Fund: fundSeries})
		out.Positions = slices.Concat(filingSeries, fundSeries)
		slices.SortStableFunc(out.Positions, func(a, b model.Position) int {
			if c := model.CompareKeys(a.Key(), b.Key()); c != 0 {
				return c
			}
			return cmp.Compare(a.Source, b.Source)
		})
		return &runlog.Result{Rows: int64(len(out.Panel)), Metadata: aggregateMeta(*st)}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
