package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testAggregator() *Aggregator {
	companies := NewCompanyMap([]model.CompanyLink{
		{SecurityID: "US-A", CompanyID: "USCO"},
		{SecurityID: "US-B", CompanyID: "USCO"},
		{SecurityID: "DE-A", CompanyID: "DECO"},
	}, nil)
	caps := MarketCaps{
		{CompanyID: "USCO", Quarter: 202003}: 100, // USD millions
		{CompanyID: "DECO", Quarter: 202003}: 50,
	}
	return New(caps, companies, map[string]string{"USCO": "US", "DECO": "DE"}, "US")
}

func row(sec, holder string, v float64, s model.Scheme) model.Position {
	return model.Position{SecurityID: sec, HolderID: holder, Quarter: 202003, Value: v, Scheme: s}
}

func TestRatios(t *testing.T) {
	a := testAggregator()
	got, st := a.Ratios([]model.Position{
		row("US-A", "I", 10e6, 1),    // 10m of 100m
		row("DE-A", "I", 5e6, 3),     // 5m of 50m
		row("XX", "I", 1e6, 3),       // unmapped
		{SecurityID: "US-A", HolderID: "I", Quarter: 202006, Value: 1}, // no cap
	})

	require.Len(t, got, 2)
	assert.InDelta(t, 0.1, got[0].Value, 1e-12)
	assert.InDelta(t, 0.1, got[1].Value, 1e-12)
	assert.Equal(t, RatioStats{Input: 4, Unmapped: 1, NoCap: 1, Converted: 2}, st)
}

func TestRatiosHolderCap(t *testing.T) {
	a := testAggregator()
	a.HolderRatioCap = true
	got, st := a.Ratios([]model.Position{row("US-A", "I", 150e6, 1), row("US-B", "I", 50e6, 1)})
	require.Len(t, got, 1)
	assert.Equal(t, 1, st.OverOne)
}

func TestBuildSumsSecuritiesOfOneCompany(t *testing.T) {
	a := testAggregator()
	rows, st := a.Build(Series{Filing: []model.Position{
		row("US-A", "I", 0.10, 1),
		row("US-B", "I", 0.05, 1),
	}})

	require.Len(t, rows, 1)
	assert.Equal(t, "USCO", rows[0].CompanyID)
	assert.InDelta(t, 0.15, rows[0].Ratio, 1e-12)
	assert.Equal(t, model.SchemeFilerDomestic, rows[0].Scheme)
	assert.Equal(t, model.OriginFiling, rows[0].Origin)
	require.NotNil(t, rows[0].MarketValue)
	assert.InDelta(t, 15.0, *rows[0].MarketValue, 1e-9)
	assert.Equal(t, 1, st.FilingOnly)
}

func TestBuildCombinationRule(t *testing.T) {
	tests := []struct {
		name      string
		sec       string
		filing    float64
		fund      float64
		want      float64
		wantOrig  model.Origin
		wantCount func(Stats) int
	}{
		{"domestic prefers filing", "US-A", 0.02, 0.05, 0.02, model.OriginBoth, func(s Stats) int { return s.Both }},
		{"foreign takes max fund", "DE-A", 0.02, 0.05, 0.05, model.OriginBoth, func(s Stats) int { return s.Both }},
		{"foreign takes max filing", "DE-A", 0.07, 0.05, 0.07, model.OriginBoth, func(s Stats) int { return s.Both }},
		{"fund only", "US-A", 0, 0.03, 0.03, model.OriginFund, func(s Stats) int { return s.FundOnly }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Series
			if tt.filing > 0 {
				s.Filing = []model.Position{row(tt.sec, "I", tt.filing, 1)}
			}
			s.Fund = []model.Position{row(tt.sec, "I", tt.fund, 3)}

			rows, st := testAggregator().Build(s)
			require.Len(t, rows, 1)
			assert.InDelta(t, tt.want, rows[0].Ratio, 1e-12)
			assert.Equal(t, tt.wantOrig, rows[0].Origin)
			assert.Equal(t, 1, tt.wantCount(st))
		})
	}
}

func TestBuildMixedSchemesTagNone(t *testing.T) {
	rows, _ := testAggregator().Build(Series{Filing: []model.Position{
		row("US-A", "I", 0.01, model.SchemeFilerDomestic),
		row("US-B", "I", 0.01, model.SchemeCatchAll),
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, model.SchemeNone, rows[0].Scheme)
}

func TestNormalizeShrinkage(t *testing.T) {
	rows := []model.PanelRow{
		{CompanyID: "C", InstitutionID: "I1", Quarter: 202003, Ratio: 0.60},
		{CompanyID: "C", InstitutionID: "I2", Quarter: 202003, Ratio: 0.45},
		{CompanyID: "C", InstitutionID: "I3", Quarter: 202003, Ratio: 0.30},
		{CompanyID: "C", InstitutionID: "I1", Quarter: 202006, Ratio: 0.50},
		{CompanyID: "D", InstitutionID: "I1", Quarter: 202003, Ratio: 0.90},
	}

	got, shrunk := Normalize(rows)
	assert.Equal(t, 1, shrunk)

	sum := 0.0
	for _, r := range got[:3] {
		sum += r.Ratio
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, 0.60/1.35, got[0].Ratio, 1e-12)
	assert.InDelta(t, 0.45/1.35, got[1].Ratio, 1e-12)
	assert.InDelta(t, 0.30/1.35, got[2].Ratio, 1e-12)
	assert.Equal(t, 0.50, got[3].Ratio)
	assert.Equal(t, 0.90, got[4].Ratio)

	assert.Equal(t, 0.60, rows[0].Ratio, "input is not modified")
}

func TestBuildNormalizesAboveOne(t *testing.T) {
	a := testAggregator()
	rows, st := a.Build(Series{Filing: []model.Position{
		row("DE-A", "I1", 0.8, 3),
		row("DE-A", "I2", 0.55, 3),
	}})
	require.Len(t, rows, 2)
	assert.Equal(t, 1, st.Shrunk)
	assert.InDelta(t, 1.0, rows[0].Ratio+rows[1].Ratio, 1e-12)
	assert.InDelta(t, 50.0, *rows[0].MarketValue+*rows[1].MarketValue, 1e-9)
}

func TestCompanyMapResolve(t *testing.T) {
	start := quarter.Quarter(201003).End()
	end := quarter.Quarter(201512).End()
	later := quarter.Quarter(201603).End()
	m := NewCompanyMap([]model.CompanyLink{
		{SecurityID: "S", CompanyID: "STATIC"},
		{SecurityID: "S", CompanyID: "IGNORED", Start: &start},
		{SecurityID: "H", CompanyID: "OLD", Start: &start, End: &end},
		{SecurityID: "H", CompanyID: "NEW", Start: &later},
	}, []model.Security{{ID: "R", CompanyID: "REG"}})

	c, ok := m.Resolve("S", 201203)
	assert.True(t, ok)
	assert.Equal(t, "STATIC", c)

	c, _ = m.Resolve("H", 201203)
	assert.Equal(t, "OLD", c)
	c, _ = m.Resolve("H", 201703)
	assert.Equal(t, "NEW", c)
	_, ok = m.Resolve("H", 200903)
	assert.False(t, ok)

	c, _ = m.Resolve("R", 202003)
	assert.Equal(t, "REG", c)
	assert.Equal(t, []string{"S"}, m.Securities("STATIC"))
}
