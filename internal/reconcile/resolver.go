package reconcile

import (
	"maps"
	"slices"
	"time"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
)

// Predicate reports whether a (holder, security) pair belongs to the
// universe being reconciled.
type Predicate func(holderID, securityID string) bool

// All admits every pair.
func All(string, string) bool { return true }

// Observation is the reduced value of one source for a cell.
type Observation struct {
	Value  float64
	At     time.Time
	Source model.SourceKind
}

// Candidate converts the observation for use in Select.
func (o Observation) Candidate() Candidate {
	return Candidate{Source: o.Source, Value: model.Float(o.Value), ObservedAt: o.At}
}

type measured struct {
	key       model.Key
	obs       Observation
	secondary *float64
}

// ConditionStats counts rows discarded while conditioning a source.
type ConditionStats struct {
	Input      int
	OutOfScope int
	NoValue    int
	Reduced    int // cells left after the within-quarter reduction
}

func reduce(rows []measured) map[model.Key]Observation {
	latest := Latest(rows,
		func(m measured) model.Key { return m.key },
		func(m measured) Reading {
			return Reading{At: m.obs.At, Primary: model.Float(m.obs.Value), Secondary: m.secondary}
		},
	)
	out := make(map[model.Key]Observation, len(latest))
	for k, m := range latest {
		out[k] = m.obs
	}
	return out
}

// Filings measures filing rows in the universe, drops rows without a
// positive value and keeps the latest report per cell.
func Filings(rows []model.Filing, in Predicate, v *Valuer) (map[model.Key]Observation, ConditionStats) {
	st := ConditionStats{Input: len(rows)}
	ms := make([]measured, 0, len(rows))
	for _, f := range rows {
		if !in(f.HolderID, f.SecurityID) {
			st.OutOfScope++
			continue
		}
		q := quarter.FromDate(f.ReportDate)
		val, ok := model.Positive(v.Filing(f, q))
		if !ok {
			st.NoValue++
			continue
		}
		ms = append(ms, measured{
			key:       model.Key{SecurityID: f.SecurityID, HolderID: f.HolderID, Quarter: q},
			obs:       Observation{Value: val, At: f.ReportDate, Source: model.SourceFiling},
			secondary: f.ReportedQuantity,
		})
	}
	out := reduce(ms)
	st.Reduced = len(out)
	return out, st
}

// Stakes measures stakes disclosures in the universe. When allow is non-nil
// only disclosures whose source code it accepts are kept.
func Stakes(rows []model.Stake, in Predicate, allow func(code string) bool, v *Valuer) (map[model.Key]Observation, ConditionStats) {
	st := ConditionStats{Input: len(rows)}
	ms := make([]measured, 0, len(rows))
	for _, s := range rows {
		if !in(s.HolderID, s.SecurityID) || (allow != nil && !allow(s.SourceCode)) {
			st.OutOfScope++
			continue
		}
		q := quarter.FromDate(s.AsOfDate)
		val, ok := model.Positive(v.Stake(s, q))
		if !ok {
			st.NoValue++
			continue
		}
		ms = append(ms, measured{
			key: model.Key{SecurityID: s.SecurityID, HolderID: s.HolderID, Quarter: q},
			obs: Observation{Value: val, At: s.AsOfDate, Source: model.SourceStakes},
		})
	}
	out := reduce(ms)
	st.Reduced = len(out)
	return out, st
}

// Index keys rolled-up positions by cell, keeping those in the universe.
func Index(ps []model.Position, in Predicate) map[model.Key]Observation {
	out := make(map[model.Key]Observation, len(ps))
	for _, p := range ps {
		if !in(p.HolderID, p.SecurityID) {
			continue
		}
		out[p.Key()] = Observation{Value: p.Value, At: p.ObservedAt, Source: p.Source}
	}
	return out
}

// ResolveStats counts the winning source per output cell.
type ResolveStats struct {
	Cells   int
	Filing  int
	Stakes  int
	FundSum int
	Dropped int
}

// Resolve outer-joins filings and stakes per cell and lets the more recent
// observation win, with the filing taking ties. Cells where neither source
// is usable fall back to funds when funds is non-nil. The output is sorted
// by key and tagged with s.
func Resolve(s model.Scheme, filings, stakes, funds map[model.Key]Observation) ([]model.Position, ResolveStats) {
	keys := make(map[model.Key]struct{}, len(filings)+len(stakes)+len(funds))
	for _, m := range []map[model.Key]Observation{filings, stakes, funds} {
		for k := range m {
			keys[k] = struct{}{}
		}
	}
	ordered := slices.SortedFunc(maps.Keys(keys), model.CompareKeys)

	st := ResolveStats{Cells: len(ordered)}
	out := make([]model.Position, 0, len(ordered))
	for _, k := range ordered {
		primary := make(Tier, 0, 2)
		if o, ok := filings[k]; ok {
			primary = append(primary, o.Candidate())
		}
		if o, ok := stakes[k]; ok {
			primary = append(primary, o.Candidate())
		}
		tiers := []Tier{primary}
		if funds != nil {
			if o, ok := funds[k]; ok {
				tiers = append(tiers, Tier{o.Candidate()})
			}
		}

		c, ok := Select(tiers...)
		if !ok {
			st.Dropped++
			continue
		}
		switch c.Source {
		case model.SourceFiling:
			st.Filing++
		case model.SourceStakes:
			st.Stakes++
		case model.SourceFundSum:
			st.FundSum++
		}
		out = append(out, model.Position{
			SecurityID: k.SecurityID,
			HolderID:   k.HolderID,
			Quarter:    k.Quarter,
			Value:      *c.Value,
			Source:     c.Source,
			ObservedAt: c.ObservedAt,
			Scheme:     s,
		})
	}
	return out, st
}
