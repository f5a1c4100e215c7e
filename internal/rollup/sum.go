package rollup

import (
	"cmp"
	"slices"

	"github.com/sells-group/ownership-cli/internal/model"
)

// ParentFunc resolves the institution a reporter rolls up to.
type ParentFunc func(holderID string) (string, bool)

// SumStats counts what Sum dropped.
type SumStats struct {
	Unmapped    int // distinct reporters without a parent
	NonPositive int
}

// Sum adds positions of every reporter sharing a parent, per security and
// quarter. The result is tagged with source and carries the latest
// contributing observation date. Inputs are summed in key order so the
// floating point result does not depend on input order. Sums that are zero
// or negative are dropped.
func Sum(ps []model.Position, parent ParentFunc, source model.SourceKind) ([]model.Position, SumStats) {
	sorted := slices.Clone(ps)
	slices.SortStableFunc(sorted, func(a, b model.Position) int {
		if c := model.CompareKeys(a.Key(), b.Key()); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})

	var st SumStats
	unmapped := map[string]struct{}{}
	acc := map[model.Key]*model.Position{}
	var order []model.Key
	for _, p := range sorted {
		inst, ok := parent(p.HolderID)
		if !ok {
			unmapped[p.HolderID] = struct{}{}
			continue
		}
		k := model.Key{SecurityID: p.SecurityID, HolderID: inst, Quarter: p.Quarter}
		cur, ok := acc[k]
		if !ok {
			cp := p
			cp.HolderID = inst
			cp.Source = source
			acc[k] = &cp
			order = append(order, k)
			continue
		}
		cur.Value += p.Value
		if p.ObservedAt.After(cur.ObservedAt) {
			cur.ObservedAt = p.ObservedAt
		}
	}
	st.Unmapped = len(unmapped)

	slices.SortFunc(order, model.CompareKeys)
	out := make([]model.Position, 0, len(order))
	for _, k := range order {
		p := acc[k]
		if p.Value <= 0 {
			st.NonPositive++
			continue
		}
		out = append(out, *p)
	}
	return out, st
}

// Links turns a static link table into a ParentFunc. Reporters missing from
// the table roll up to themselves when self is true.
func Links(links map[string]string, self bool) ParentFunc {
	return func(id string) (string, bool) {
		if p, ok := links[id]; ok {
			return p, true
		}
		if self {
			return id, true
		}
		return "", false
	}
}

// FilerLinks indexes filer roll-up links.
func FilerLinks(links []model.FilerLink) map[string]string {
	out := make(map[string]string, len(links))
	for _, l := range links {
		out[l.FilerID] = l.InstitutionID
	}
	return out
}
