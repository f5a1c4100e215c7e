// Package combine unions the per-scheme panels into one ownership series.
package combine

import (
	"cmp"
	"slices"

	"github.com/samber/lo"

	"github.com/sells-group/ownership-cli/internal/model"
)

// Stats summarises a union.
type Stats struct {
	Input      int
	Duplicates int // rows identical in key and value to an earlier row
	Conflicts  int // keys present with different values
	PerScheme  map[model.Scheme]int
}

type distinctKey struct {
	key   model.Key
	value float64
}

// Union concatenates panels in order and keeps one row per (security,
// holder, quarter, value). Rows sharing a key but not a value are all kept
// and counted as conflicts; with a proper scheme partition there are none.
// The result is sorted by key.
func Union(panels ...[]model.Position) ([]model.Position, Stats) {
	st := Stats{PerScheme: map[model.Scheme]int{}}
	all := lo.Flatten(panels)
	st.Input = len(all)

	seen := make(map[distinctKey]struct{}, len(all))
	values := make(map[model.Key]float64, len(all))
	out := make([]model.Position, 0, len(all))
	for _, p := range all {
		dk := distinctKey{key: p.Key(), value: p.Value}
		if _, ok := seen[dk]; ok {
			st.Duplicates++
			continue
		}
		seen[dk] = struct{}{}
		if v, ok := values[dk.key]; ok && v != p.Value {
			st.Conflicts++
		}
		values[dk.key] = p.Value
		out = append(out, p)
		st.PerScheme[p.Scheme]++
	}

	slices.SortStableFunc(out, func(a, b model.Position) int {
		if c := model.CompareKeys(a.Key(), b.Key()); c != 0 {
			return c
		}
		return cmp.Compare(a.Scheme, b.Scheme)
	})
	return out, st
}
