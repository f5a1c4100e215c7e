package impute

import (
	"cmp"
	"slices"
	"time"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
)

// DefaultCarryWindow is the number of quarters a periodic report may be
// carried forward.
const DefaultCarryWindow = 7

// Carry imputes missing quarters of periodic reporters (filers or funds).
// Within a reporter's first and last report quarter, a quarter without any
// report inherits every position of the most recent report quarter, as long
// as that quarter is at most Window quarters back. A carried position is
// dropped once the quarter passes the security's termination quarter.
//
// Reported lists, per reporter, the quarters it filed a report for. Such a
// quarter is never a gap, even when none of its positions survived
// reconciliation.
type Carry struct {
	Window      int
	Termination map[string]quarter.Quarter
	Reported    map[string]map[quarter.Quarter]struct{}
}

// ReportQuarters collects the quarters each reporter filed in.
func ReportQuarters[T any](rows []T, report func(T) (string, time.Time)) map[string]map[quarter.Quarter]struct{} {
	out := map[string]map[quarter.Quarter]struct{}{}
	for _, r := range rows {
		id, at := report(r)
		qs, ok := out[id]
		if !ok {
			qs = map[quarter.Quarter]struct{}{}
			out[id] = qs
		}
		qs[quarter.FromDate(at)] = struct{}{}
	}
	return out
}

// CarryStats summarises a carry run.
type CarryStats struct {
	Reporters  int
	GapQuarter int // reporter quarters filled
	Emptied    int // reported quarters with no surviving position
	Stale      int // reporter quarters too far from the last report
	Carried    int // positions added
	Terminated int // positions not carried past the security's last price
}

// Run returns the input positions plus the imputed ones, sorted by key.
// HolderID identifies the reporter. Values are carried unchanged, so they
// should be ownership ratios rather than share counts.
func (c Carry) Run(ps []model.Position) ([]model.Position, CarryStats) {
	window := c.Window
	if window <= 0 {
		window = DefaultCarryWindow
	}

	byReporter := map[string]map[quarter.Quarter][]model.Position{}
	for _, p := range ps {
		qs, ok := byReporter[p.HolderID]
		if !ok {
			qs = map[quarter.Quarter][]model.Position{}
			byReporter[p.HolderID] = qs
		}
		qs[p.Quarter] = append(qs[p.Quarter], p)
	}

	st := CarryStats{Reporters: len(byReporter)}
	out := slices.Clone(ps)
	for id, qs := range byReporter {
		filed := c.Reported[id]
		reported := make([]quarter.Quarter, 0, len(qs))
		for q := range qs {
			reported = append(reported, q)
		}
		slices.Sort(reported)

		last := reported[0]
		for _, q := range quarter.Range(reported[0], reported[len(reported)-1]) {
			if _, ok := qs[q]; ok {
				last = q
				continue
			}
			if _, ok := filed[q]; ok {
				// The report superseded the previous one; carry nothing from it.
				st.Emptied++
				last = q
				continue
			}
			if q.Sub(last) > window {
				st.Stale++
				continue
			}
			st.GapQuarter++
			for _, src := range qs[last] {
				term, ok := c.Termination[src.SecurityID]
				if !ok || q > term {
					st.Terminated++
					continue
				}
				cp := src
				cp.Quarter = q
				cp.Imputed = true
				out = append(out, cp)
				st.Carried++
			}
		}
	}

	slices.SortStableFunc(out, func(a, b model.Position) int {
		if c := model.CompareKeys(a.Key(), b.Key()); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return out, st
}
