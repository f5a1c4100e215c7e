package aggregate

import (
	"cmp"
	"slices"

	"github.com/sells-group/ownership-cli/internal/model"
)

// CountsTowardMarketCap reports whether a security's value belongs in its
// company's market cap: ordinary equity, or preferred equity typed PREFEQ.
// Depositary receipts never count.
func CountsTowardMarketCap(s model.Security) bool {
	switch s.IssueType {
	case model.IssueEquity:
		return true
	case model.IssuePreferred:
		return s.SecurityType == model.SecurityTypePreferred
	}
	return false
}

// PrincipalSecurities picks one representative security per company. The
// security named as the company's primary equity wins; otherwise the first
// share or preferred-equity security, active listings first, then by
// security type and id.
func PrincipalSecurities(securities []model.Security, companies *CompanyMap) map[string]model.Security {
	byCompany := map[string][]model.Security{}
	for _, s := range securities {
		c := s.CompanyID
		if companies != nil {
			if id, ok := companies.static[s.ID]; ok {
				c = id
			}
		}
		if c == "" {
			continue
		}
		byCompany[c] = append(byCompany[c], s)
	}

	out := make(map[string]model.Security, len(byCompany))
	for c, secs := range byCompany {
		if p, ok := primaryOf(secs); ok {
			out[c] = p
			continue
		}
		candidates := make([]model.Security, 0, len(secs))
		for _, s := range secs {
			if s.SecurityType == model.SecurityTypeShare || s.SecurityType == model.SecurityTypePreferred {
				candidates = append(candidates, s)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		slices.SortFunc(candidates, func(a, b model.Security) int {
			if a.Active != b.Active {
				if a.Active {
					return -1
				}
				return 1
			}
			if c := cmp.Compare(a.SecurityType, b.SecurityType); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		out[c] = candidates[0]
	}
	return out
}

func primaryOf(secs []model.Security) (model.Security, bool) {
	for _, s := range secs {
		if s.PrimaryEquityID != "" && s.ID == s.PrimaryEquityID {
			return s, true
		}
	}
	return model.Security{}, false
}

// CompanyCountries returns the listing country of each company's principal
// security. Companies without a principal fall back to the country of their
// lowest-id security.
func CompanyCountries(securities []model.Security, companies *CompanyMap) map[string]string {
	out := map[string]string{}
	for c, s := range PrincipalSecurities(securities, companies) {
		out[c] = s.Country
	}

	sorted := slices.Clone(securities)
	slices.SortFunc(sorted, func(a, b model.Security) int { return cmp.Compare(a.ID, b.ID) })
	for _, s := range sorted {
		c := s.CompanyID
		if companies != nil {
			if id, ok := companies.static[s.ID]; ok {
				c = id
			}
		}
		if c == "" || s.Country == "" {
			continue
		}
		if _, ok := out[c]; !ok {
			out[c] = s.Country
		}
	}
	return out
}
