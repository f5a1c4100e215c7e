package pipeline

import (
	"github.com/sells-group/ownership-cli/internal/aggregate"
	"github.com/sells-group/ownership-cli/internal/combine"
	"github.com/sells-group/ownership-cli/internal/impute"
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/reconcile"
	"github.com/sells-group/ownership-cli/internal/rollup"
	"github.com/sells-group/ownership-cli/internal/scheme"
)

// SchemeStats summarises one scheme's resolution or gap fill.
type SchemeStats struct {
	Filings reconcile.ConditionStats
	Stakes  reconcile.ConditionStats
	Resolve reconcile.ResolveStats
	Fill    impute.FillStats
	Rows    int
}

// Stats collects the counters of every stage of a run. Data conditions
// that drop rows are reported here rather than as errors.
type Stats struct {
	Partition  scheme.Partition
	Rollup     rollup.Stats
	Schemes    map[model.Scheme]SchemeStats
	Combine    combine.Stats
	Caps       aggregate.CapStats
	Ratios     aggregate.RatioStats // filing series, or the whole union
	FundRatios aggregate.RatioStats
	Carry      impute.CarryStats // filer-level imputation
	FundCarry  impute.CarryStats
	FilerSum   rollup.SumStats
	Aggregate  aggregate.Stats
}

func partitionMeta(p scheme.Partition) map[string]any {
	m := map[string]any{"excluded_pairs": len(p.Excluded)}
	for _, s := range model.Schemes {
		m[s.String()] = p.Counts[s]
	}
	return m
}

func rollupMeta(st rollup.Stats) map[string]any {
	return map[string]any{
		"shards":         st.Shards,
		"rows":           st.Rows,
		"fund_cells":     st.FundCells,
		"null_values":    st.NoValue,
		"unmapped_funds": st.UnmappedFunds,
		"non_positive":   st.NonPositive,
	}
}

func schemesMeta(all map[model.Scheme]SchemeStats) map[string]any {
	m := map[string]any{}
	for s, st := range all {
		m[s.String()] = map[string]any{
			"rows":            st.Rows,
			"filing_no_value": st.Filings.NoValue,
			"stakes_no_value": st.Stakes.NoValue,
			"resolved_filing": st.Resolve.Filing,
			"resolved_stakes": st.Resolve.Stakes,
			"resolved_funds":  st.Resolve.FundSum,
			"dropped":         st.Resolve.Dropped,
			"carried":         st.Fill.Carried,
			"fund_fallback":   st.Fill.FundSum,
			"out_of_range":    st.Fill.OutOfRange,
		}
	}
	return m
}

func aggregateMeta(st Stats) map[string]any {
	return map[string]any{
		"cap_unmapped":   st.Caps.Unmapped,
		"cap_exclusions": st.Caps.Excluded,
		"ratio_unmapped": st.Ratios.Unmapped + st.FundRatios.Unmapped,
		"ratio_no_cap":   st.Ratios.NoCap + st.FundRatios.NoCap,
		"ratio_over_one": st.Ratios.OverOne + st.FundRatios.OverOne,
		"carried":        st.Carry.Carried + st.FundCarry.Carried,
		"filing_only":    st.Aggregate.FilingOnly,
		"fund_only":      st.Aggregate.FundOnly,
		"both":           st.Aggregate.Both,
		"shrunk":         st.Aggregate.Shrunk,
	}
}
