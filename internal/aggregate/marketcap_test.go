package aggregate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
	"github.com/sells-group/ownership-cli/internal/reconcile"
)

func price(sec string, d time.Time, unadjPx, unadjSh, adjPx, adjSh float64) model.Price {
	return model.Price{
		SecurityID: sec, PriceDate: d,
		UnadjPrice: model.Float(unadjPx), UnadjShares: model.Float(unadjSh),
		AdjPrice: model.Float(adjPx), AdjShares: model.Float(adjSh),
	}
}

func TestBuildMarketCaps(t *testing.T) {
	securities := []model.Security{
		{ID: "ORD", CompanyID: "C", IssueType: model.IssueEquity, SecurityType: model.SecurityTypeShare},
		{ID: "PREF", CompanyID: "C", IssueType: model.IssuePreferred, SecurityType: model.SecurityTypePreferred},
		{ID: "PREF2", CompanyID: "C", IssueType: model.IssuePreferred, SecurityType: "OTHER"},
		{ID: "ADR", CompanyID: "C", IssueType: model.IssueDepositary, SecurityType: model.SecurityTypeShare},
		{ID: "LOST", IssueType: model.IssueEquity},
		{ID: "OLDCLASS", CompanyID: "C", IssueType: model.IssueEquity},
	}
	d := time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC)
	prices := reconcile.QuarterPrices([]model.Price{
		price("ORD", d, 10, 1e6, 5, 2e6),       // 10m unadjusted
		price("PREF", d, 2, 1e6, 2, 1e6),       // 2m
		price("PREF2", d, 100, 1e6, 100, 1e6),  // not principal
		price("ADR", d, 100, 1e6, 100, 1e6),    // depositary receipt
		price("LOST", d, 1, 1e6, 1, 1e6),       // no company
		price("OLDCLASS", d, 1, 3e6, 1, 3e6),   // 3m, excluded from 202006
		price("OLDCLASS", d2, 1, 3e6, 1, 3e6),
		{SecurityID: "ORD", PriceDate: d2, UnadjPrice: model.Float(4), UnadjShares: model.Float(0), AdjPrice: model.Float(3), AdjShares: model.Float(1e6)},
	})

	excl := Exclusions{"OLDCLASS": 202006}
	caps, st := BuildMarketCaps(prices, securities, NewCompanyMap(nil, securities), excl)

	v, ok := caps.Get("C", 202003)
	require.True(t, ok)
	assert.InDelta(t, 15.0, v, 1e-9)

	v, ok = caps.Get("C", 202006)
	require.True(t, ok)
	assert.InDelta(t, 3.0, v, 1e-9, "adjusted fallback, exclusion applied")

	assert.Equal(t, 2, st.NotPrincipal)
	assert.Equal(t, 1, st.Unmapped)
	assert.Equal(t, 1, st.Excluded)
}

func TestSecurityValue(t *testing.T) {
	v, ok := SecurityValue(model.Price{UnadjPrice: model.Float(2), UnadjShares: model.Float(3)})
	assert.True(t, ok)
	assert.Equal(t, 6.0, v)

	_, ok = SecurityValue(model.Price{UnadjPrice: model.Float(2)})
	assert.False(t, ok)
}

func TestPrincipalSecurities(t *testing.T) {
	securities := []model.Security{
		{ID: "A1", CompanyID: "A", SecurityType: model.SecurityTypeShare, Active: false, Country: "US"},
		{ID: "A2", CompanyID: "A", SecurityType: model.SecurityTypeShare, Active: true, Country: "US", PrimaryEquityID: "A2"},
		{ID: "B1", CompanyID: "B", SecurityType: model.SecurityTypeShare, Active: false, Country: "GB"},
		{ID: "B2", CompanyID: "B", SecurityType: model.SecurityTypePreferred, Active: true, Country: "DE"},
		{ID: "B3", CompanyID: "B", SecurityType: "DR", Active: true, Country: "US"},
		{ID: "C1", CompanyID: "C", SecurityType: "DR", Country: "JP"},
		{ID: "D1", CompanyID: "D", SecurityType: model.SecurityTypeShare, Active: false, Country: "FR"},
		{ID: "D2", CompanyID: "D", SecurityType: model.SecurityTypeShare, Active: true, Country: "FR"},
	}

	got := PrincipalSecurities(securities, nil)
	assert.Equal(t, "A2", got["A"].ID)
	assert.Equal(t, "B2", got["B"].ID, "an active listing beats an inactive share")
	assert.Equal(t, "D2", got["D"].ID, "an active listing beats a lower id")
	_, ok := got["C"]
	assert.False(t, ok)

	countries := CompanyCountries(securities, nil)
	assert.Equal(t, map[string]string{"A": "US", "B": "DE", "C": "JP", "D": "FR"}, countries)
}

func TestCountsTowardMarketCap(t *testing.T) {
	assert.True(t, CountsTowardMarketCap(model.Security{IssueType: "EQ"}))
	assert.True(t, CountsTowardMarketCap(model.Security{IssueType: "PF", SecurityType: "PREFEQ"}))
	assert.False(t, CountsTowardMarketCap(model.Security{IssueType: "PF", SecurityType: "SHARE"}))
	assert.False(t, CountsTowardMarketCap(model.Security{IssueType: "AD"}))
}

func TestLoadExclusions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exclusions.yaml")
	doc := `
exclusions:
  - security_id: DXVFL5-S
    from_quarter: 201512
    reason: unified share class
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	excl, err := LoadExclusions(path)
	require.NoError(t, err)
	assert.True(t, excl.Excluded("DXVFL5-S", 201512))
	assert.True(t, excl.Excluded("DXVFL5-S", 202003))
	assert.False(t, excl.Excluded("DXVFL5-S", 201509))
	assert.False(t, excl.Excluded("OTHER", 202003))

	empty, err := LoadExclusions("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = LoadExclusions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseExclusionsInvalid(t *testing.T) {
	_, err := ParseExclusions([]byte("exclusions:\n  - from_quarter: 201512\n"))
	assert.Error(t, err)

	_, err = ParseExclusions([]byte("exclusions:\n  - security_id: X\n    from_quarter: 201511\n"))
	assert.Error(t, err)

	_, err = ParseExclusions([]byte("exclusions: [\n"))
	assert.Error(t, err)

	excl, err := ParseExclusions([]byte("exclusions: []\n"))
	require.NoError(t, err)
	assert.False(t, excl.Excluded("X", quarter.Quarter(202003)))
}
