// Package aggregate turns security-level holdings into company-level
// ownership ratios: market caps, principal securities, the filing/fund
// combination rule and the over-100% correction.
package aggregate

import (
	"slices"
	"time"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
)

// CompanyMap resolves the issuing company of a security. Static links win;
// time-sliced links are consulted when a security has no static link.
type CompanyMap struct {
	static map[string]string
	sliced map[string][]model.CompanyLink
}

// NewCompanyMap indexes company links. A security registry entry carrying
// a CompanyID acts as a static link unless an explicit static link exists.
func NewCompanyMap(links []model.CompanyLink, securities []model.Security) *CompanyMap {
	m := &CompanyMap{static: map[string]string{}, sliced: map[string][]model.CompanyLink{}}
	for _, s := range securities {
		if s.CompanyID != "" {
			m.static[s.ID] = s.CompanyID
		}
	}
	for _, l := range links {
		if l.Sliced() {
			m.sliced[l.SecurityID] = append(m.sliced[l.SecurityID], l)
			continue
		}
		m.static[l.SecurityID] = l.CompanyID
	}
	for id, ls := range m.sliced {
		slices.SortFunc(ls, func(a, b model.CompanyLink) int {
			return startOf(a).Compare(startOf(b))
		})
		m.sliced[id] = ls
	}
	return m
}

func startOf(l model.CompanyLink) time.Time {
	if l.Start != nil {
		return *l.Start
	}
	return time.Time{}
}

// Resolve returns the company of a security at quarter q. For time-sliced
// links the quarter end must fall inside the link's window; the latest
// starting link wins if several do.
func (m *CompanyMap) Resolve(securityID string, q quarter.Quarter) (string, bool) {
	if c, ok := m.static[securityID]; ok {
		return c, true
	}
	end := q.End()
	ls := m.sliced[securityID]
	for i := len(ls) - 1; i >= 0; i-- {
		if ls[i].Covers(end) {
			return ls[i].CompanyID, true
		}
	}
	return "", false
}

// Securities returns the ids of securities with a static link to company.
func (m *CompanyMap) Securities(companyID string) []string {
	var out []string
	for sec, c := range m.static {
		if c == companyID {
			out = append(out, sec)
		}
	}
	slices.Sort(out)
	return out
}
