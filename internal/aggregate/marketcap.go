package aggregate

import (
	"maps"
	"slices"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/reconcile"
)

// CompanyQuarter keys company-level series.
type CompanyQuarter struct {
	CompanyID string
	Quarter   quarter.Quarter
}

// MarketCaps holds company market capitalisation in USD millions.
type MarketCaps map[CompanyQuarter]float64

// Get returns the market cap of a company in a quarter.
func (m MarketCaps) Get(companyID string, q quarter.Quarter) (float64, bool) {
	v, ok := m[CompanyQuarter{CompanyID: companyID, Quarter: q}]
	return v, ok
}

// CapStats counts securities left out of the market cap.
type CapStats struct {
	NotPrincipal int
	Unmapped     int
	NoValue      int
	Excluded     int
}

// SecurityValue returns a security's market value for its quarter price:
// unadjusted price times unadjusted shares, falling back to the adjusted
// pair when that product is not positive.
func SecurityValue(p model.Price) (float64, bool) {
	if px, ok := model.Positive(p.UnadjPrice); ok {
		if sh, ok := model.Positive(p.UnadjShares); ok {
			return px * sh, true
		}
	}
	if px, ok := model.Positive(p.AdjPrice); ok {
		if sh, ok := model.Positive(p.AdjShares); ok {
			return px * sh, true
		}
	}
	return 0, false
}

// BuildMarketCaps sums the value of principal issues per company and
// quarter, in USD millions. Non-positive totals are left out.
func BuildMarketCaps(prices map[reconcile.PriceKey]model.Price, securities []model.Security, companies *CompanyMap, excl Exclusions) (MarketCaps, CapStats) {
	registry := make(map[string]model.Security, len(securities))
	for _, s := range securities {
		registry[s.ID] = s
	}

	var st CapStats
	sums := map[CompanyQuarter]float64{}
	keys := slices.SortedFunc(maps.Keys(prices), func(a, b reconcile.PriceKey) int {
		return model.CompareKeys(model.Key{SecurityID: a.SecurityID, Quarter: a.Quarter}, model.Key{SecurityID: b.SecurityID, Quarter: b.Quarter})
	})
	for _, k := range keys {
		sec, ok := registry[k.SecurityID]
		if !ok || !CountsTowardMarketCap(sec) {
			st.NotPrincipal++
			continue
		}
		if excl.Excluded(k.SecurityID, k.Quarter) {
			st.Excluded++
			continue
		}
		company, ok := companies.Resolve(k.SecurityID, k.Quarter)
		if !ok {
			st.Unmapped++
			continue
		}
		v, ok := SecurityValue(prices[k])
		if !ok {
			st.NoValue++
			continue
		}
		sums[CompanyQuarter{CompanyID: company, Quarter: k.Quarter}] += v / 1e6
	}

	out := make(MarketCaps, len(sums))
	for k, v := range sums {
		if v > 0 {
			out[k] = v
		}
	}
	return out, st
}
