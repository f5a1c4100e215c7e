package reconcile

import (
	"time"

	"github.com/sells-group/ownership-cli/internal/model"
)

// Candidate is one source's offer for a position cell.
type Candidate struct {
	Source     model.SourceKind
	Value      *float64
	ObservedAt time.Time
}

// Valid reports whether the candidate carries a usable value. Null, zero and
// negative values are no position.
func (c Candidate) Valid() bool {
	_, ok := model.Positive(c.Value)
	return ok
}

// Tier is a group of candidates that compete on recency.
type Tier []Candidate

// best returns the most recent valid candidate of the tier. On equal dates
// the candidate listed first wins.
func (t Tier) best() (Candidate, bool) {
	var (
		out   Candidate
		found bool
	)
	for _, c := range t {
		if !c.Valid() {
			continue
		}
		if !found || c.ObservedAt.After(out.ObservedAt) {
			out = c
			found = true
		}
	}
	return out, found
}

// Select walks tiers in priority order and returns the winner of the first
// tier holding a valid candidate.
func Select(tiers ...Tier) (Candidate, bool) {
	for _, t := range tiers {
		if c, ok := t.best(); ok {
			return c, true
		}
	}
	return Candidate{}, false
}
