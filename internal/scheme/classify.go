// Package scheme assigns each (holder, security) pair to exactly one
// reconciliation scheme using the registry coverage flags.
package scheme

import (
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/sells-group/ownership-cli/internal/model"
)

// Classifier maps pairs to schemes. It is read-only after construction and
// safe for concurrent use.
type Classifier struct {
	holders    map[string]model.Holder
	securities map[string]model.Security

	excluded atomic.Int64
}

// NewClassifier indexes the holder and security registries. Later entries
// override earlier ones with the same id.
func NewClassifier(holders []model.Holder, securities []model.Security) *Classifier {
	return &Classifier{
		holders:    lo.SliceToMap(holders, func(h model.Holder) (string, model.Holder) { return h.ID, h }),
		securities: lo.SliceToMap(securities, func(s model.Security) (string, model.Security) { return s.ID, s }),
	}
}

// Classify returns the scheme for a pair. Rules, first match wins:
//
//	UK-disclosure-reportable security            -> 4
//	filer holder, domestic-reportable security   -> 1
//	filer holder, cross-border-reportable        -> 2
//	anything else                                -> 3
//
// A pair whose security is unknown, or whose holder is unknown outside
// scheme 4, is excluded (SchemeNone) and counted.
func (c *Classifier) Classify(holderID, securityID string) model.Scheme {
	s := c.classify(holderID, securityID)
	if s == model.SchemeNone {
		c.excluded.Add(1)
	}
	return s
}

func (c *Classifier) classify(holderID, securityID string) model.Scheme {
	sec, ok := c.securities[securityID]
	if !ok {
		return model.SchemeNone
	}
	if sec.UKReportable {
		return model.SchemeUKDisclosure
	}

	h, ok := c.holders[holderID]
	if !ok {
		return model.SchemeNone
	}
	switch {
	case h.RegulatoryFiler && sec.DomesticReportable:
		return model.SchemeFilerDomestic
	case h.RegulatoryFiler && sec.CrossBorderReportable:
		return model.SchemeFilerCrossBorder
	default:
		return model.SchemeCatchAll
	}
}

// In returns a predicate admitting the pairs assigned to s. Calls through
// the predicate are not counted as exclusions.
func (c *Classifier) In(s model.Scheme) func(holderID, securityID string) bool {
	return func(holderID, securityID string) bool {
		return c.classify(holderID, securityID) == s
	}
}

// Excluded returns how many Classify calls returned SchemeNone so far.
func (c *Classifier) Excluded() int64 {
	return c.excluded.Load()
}

// Security looks up a security in the registry.
func (c *Classifier) Security(id string) (model.Security, bool) {
	s, ok := c.securities[id]
	return s, ok
}

// Holder looks up a holder in the registry.
func (c *Classifier) Holder(id string) (model.Holder, bool) {
	h, ok := c.holders[id]
	return h, ok
}

// IsFiler reports whether the holder is a known regulatory filer.
func (c *Classifier) IsFiler(id string) bool {
	return c.holders[id].RegulatoryFiler
}

// Partition is the result of classifying a set of pairs.
type Partition struct {
	Counts   map[model.Scheme]int
	Excluded []model.Pair
}

// Total returns the number of pairs that landed in a scheme.
func (p Partition) Total() int {
	n := 0
	for _, c := range p.Counts {
		n += c
	}
	return n
}

// Partition classifies distinct pairs and counts them per scheme. Duplicate
// pairs are counted once.
func (c *Classifier) Partition(pairs []model.Pair) Partition {
	out := Partition{Counts: make(map[model.Scheme]int, len(model.Schemes))}
	for _, p := range lo.Uniq(pairs) {
		s := c.Classify(p.HolderID, p.SecurityID)
		if s == model.SchemeNone {
			out.Excluded = append(out.Excluded, p)
			continue
		}
		out.Counts[s]++
	}
	return out
}

// Filter returns the subset of pairs assigned to s.
func (c *Classifier) Filter(s model.Scheme, pairs []model.Pair) []model.Pair {
	return lo.Filter(pairs, func(p model.Pair, _ int) bool {
		return c.classify(p.HolderID, p.SecurityID) == s
	})
}
