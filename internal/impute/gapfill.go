// Package impute fills reporting gaps: bounded forward fill of stakes
// disclosures per (security, holder) and reporter-level carry forward of
// periodic filings.
package impute

import (
	"maps"
	"slices"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/reconcile"
)

// Windows holds the forward-fill horizons, in quarters.
type Windows struct {
	Domestic          int
	Global            int
	UK                int
	DomesticCountries []string
}

// For returns the window that applies to a security under scheme s. The UK
// disclosure scheme always uses the UK window; otherwise a security listed
// in a domestic country gets the domestic window.
func (w Windows) For(s model.Scheme, sec model.Security) int {
	if s == model.SchemeUKDisclosure {
		return w.UK
	}
	if slices.Contains(w.DomesticCountries, sec.Country) {
		return w.Domestic
	}
	return w.Global
}

// SecurityLookup resolves a security from the registry.
type SecurityLookup func(id string) (model.Security, bool)

// GapFill forward-fills stakes disclosures for one scheme and falls back to
// rolled-up fund values where no in-window stake exists.
type GapFill struct {
	Scheme     model.Scheme
	Windows    Windows
	Start      quarter.Quarter
	End        quarter.Quarter
	Securities SecurityLookup
}

// FillStats summarises a gap-fill run.
type FillStats struct {
	Pairs      int
	Observed   int // cells with a stake struck in that quarter
	Carried    int // cells filled from an earlier stake
	FundSum    int // cells taken from the fund fallback
	OutOfRange int // observations outside [Start, End]
}

type pairSeries struct {
	stakes map[quarter.Quarter]reconcile.Observation
	funds  map[quarter.Quarter]reconcile.Observation
}

// Run fills every (security, holder) pair seen in stakes or funds. Each
// pair is walked from its first observation to the earlier of End and the
// last quarter that can still hold a value. A cell takes the latest stake
// within the window, else the fund value, else it is left out.
func (g GapFill) Run(stakes, funds map[model.Key]reconcile.Observation) ([]model.Position, FillStats) {
	var st FillStats
	series := map[model.Pair]*pairSeries{}
	add := func(src map[model.Key]reconcile.Observation, isStake bool) {
		for k, o := range src {
			if k.Quarter < g.Start || k.Quarter > g.End {
				st.OutOfRange++
				continue
			}
			ps, ok := series[k.Pair()]
			if !ok {
				ps = &pairSeries{
					stakes: map[quarter.Quarter]reconcile.Observation{},
					funds:  map[quarter.Quarter]reconcile.Observation{},
				}
				series[k.Pair()] = ps
			}
			if isStake {
				ps.stakes[k.Quarter] = o
			} else {
				ps.funds[k.Quarter] = o
			}
		}
	}
	add(stakes, true)
	add(funds, false)

	pairs := slices.SortedFunc(maps.Keys(series), func(a, b model.Pair) int {
		return model.CompareKeys(model.Key{SecurityID: a.SecurityID, HolderID: a.HolderID}, model.Key{SecurityID: b.SecurityID, HolderID: b.HolderID})
	})
	st.Pairs = len(pairs)

	var out []model.Position
	for _, p := range pairs {
		sec, _ := g.Securities(p.SecurityID)
		window := g.Windows.For(g.Scheme, sec)
		out = append(out, g.fillPair(p, series[p], window, &st)...)
	}
	return out, st
}

// span returns the bounded quarter range a pair needs to be walked over.
func (g GapFill) span(ps *pairSeries, window int) (quarter.Quarter, quarter.Quarter) {
	first, last := quarter.Quarter(0), quarter.Quarter(0)
	see := func(q, reach quarter.Quarter) {
		if first == 0 || q < first {
			first = q
		}
		if reach > last {
			last = reach
		}
	}
	for q := range ps.stakes {
		see(q, q.Add(window))
	}
	for q := range ps.funds {
		see(q, q)
	}
	return first, quarter.Min(last, g.End)
}

func (g GapFill) fillPair(p model.Pair, ps *pairSeries, window int, st *FillStats) []model.Position {
	from, to := g.span(ps, window)

	var (
		out     []model.Position
		cur     reconcile.Observation
		curQ    quarter.Quarter
		hasCurr bool
	)
	for _, q := range quarter.Range(from, to) {
		if o, ok := ps.stakes[q]; ok {
			cur, curQ, hasCurr = o, q, true
		}

		pos := model.Position{SecurityID: p.SecurityID, HolderID: p.HolderID, Quarter: q, Scheme: g.Scheme}
		switch {
		case hasCurr && q.Sub(curQ) <= window:
			pos.Value = cur.Value
			pos.Source = model.SourceStakes
			pos.ObservedAt = cur.At
			pos.Imputed = q != curQ
			if pos.Imputed {
				st.Carried++
			} else {
				st.Observed++
			}
		default:
			f, ok := ps.funds[q]
			if !ok {
				continue
			}
			pos.Value = f.Value
			pos.Source = model.SourceFundSum
			pos.ObservedAt = f.At
			st.FundSum++
		}
		out = append(out, pos)
	}
	return out
}
