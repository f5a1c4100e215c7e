package impute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
)

func ratio(holder, sec string, q quarter.Quarter, v float64) model.Position {
	return model.Position{SecurityID: sec, HolderID: holder, Quarter: q, Value: v, Source: model.SourceFiling, ObservedAt: q.End()}
}

func cells(ps []model.Position) map[model.Key]model.Position {
	out := map[model.Key]model.Position{}
	for _, p := range ps {
		out[p.Key()] = p
	}
	return out
}

func TestCarryFillsInteriorGaps(t *testing.T) {
	in := []model.Position{
		ratio("F", "A", 201903, 0.01),
		ratio("F", "B", 201903, 0.02),
		ratio("F", "A", 202003, 0.03),
	}
	c := Carry{Window: 7, Termination: map[string]quarter.Quarter{"A": 202312, "B": 201906}}

	got, st := c.Run(in)
	byKey := cells(got)

	for _, q := range []quarter.Quarter{201906, 201909, 201912} {
		p, ok := byKey[model.Key{SecurityID: "A", HolderID: "F", Quarter: q}]
		require.True(t, ok, "A at %d", q)
		assert.Equal(t, 0.01, p.Value)
		assert.True(t, p.Imputed)
	}

	// B stops at its last priced quarter.
	_, ok := byKey[model.Key{SecurityID: "B", HolderID: "F", Quarter: 201906}]
	assert.True(t, ok)
	_, ok = byKey[model.Key{SecurityID: "B", HolderID: "F", Quarter: 201909}]
	assert.False(t, ok)

	// Nothing is carried past the last report.
	_, ok = byKey[model.Key{SecurityID: "A", HolderID: "F", Quarter: 202006}]
	assert.False(t, ok)

	assert.Equal(t, 3, st.GapQuarter)
	assert.Equal(t, 4, st.Carried)
	assert.Equal(t, 2, st.Terminated)
	assert.Len(t, got, 3+4)
}

func TestCarryWindowLimit(t *testing.T) {
	in := []model.Position{
		ratio("F", "A", 201503, 0.1),
		ratio("F", "A", 201803, 0.2),
	}
	c := Carry{Window: 7, Termination: map[string]quarter.Quarter{"A": 202312}}

	got, st := c.Run(in)
	byKey := cells(got)

	_, ok := byKey[model.Key{SecurityID: "A", HolderID: "F", Quarter: quarter.Quarter(201503).Add(7)}]
	assert.True(t, ok)
	_, ok = byKey[model.Key{SecurityID: "A", HolderID: "F", Quarter: quarter.Quarter(201503).Add(8)}]
	assert.False(t, ok)

	// 201503..201803 spans 12 quarters; 11 are gaps, 7 within reach.
	assert.Equal(t, 7, st.GapQuarter)
	assert.Equal(t, 4, st.Stale)
}

func TestCarryKeepsReportersSeparate(t *testing.T) {
	in := []model.Position{
		ratio("F1", "A", 202003, 0.1),
		ratio("F1", "A", 202009, 0.1),
		ratio("F2", "A", 202006, 0.5),
	}
	c := Carry{Termination: map[string]quarter.Quarter{"A": 202312}}

	got, st := c.Run(in)
	assert.Len(t, got, 4)
	assert.Equal(t, 2, st.Reporters)

	byKey := cells(got)
	assert.Equal(t, 0.1, byKey[model.Key{SecurityID: "A", HolderID: "F1", Quarter: 202006}].Value)
	assert.Equal(t, 0.5, byKey[model.Key{SecurityID: "A", HolderID: "F2", Quarter: 202006}].Value)
}

func TestCarryUnknownTerminationDrops(t *testing.T) {
	in := []model.Position{
		ratio("F", "A", 202003, 0.1),
		ratio("F", "A", 202009, 0.1),
	}
	got, st := Carry{Window: 7}.Run(in)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, st.Terminated)
}

func TestCarryReportedQuarterIsNotAGap(t *testing.T) {
	in := []model.Position{
		ratio("F", "A", 202103, 0.1),
		ratio("F", "B", 202103, 0.2),
		ratio("F", "A", 202109, 0.3),
	}
	term := map[string]quarter.Quarter{"A": 202312, "B": 202312}

	// F filed in 202106 but none of its cells survived.
	c := Carry{
		Window:      7,
		Termination: term,
		Reported:    map[string]map[quarter.Quarter]struct{}{"F": {202103: {}, 202106: {}, 202109: {}}},
	}
	got, st := c.Run(in)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, st.Emptied)
	assert.Zero(t, st.Carried)

	// Without the report the quarter is a gap.
	got, st = Carry{Window: 7, Termination: term}.Run(in)
	assert.Len(t, got, 5)
	assert.Equal(t, 2, st.Carried)
}

func TestReportQuarters(t *testing.T) {
	type report struct {
		id string
		at time.Time
	}
	got := ReportQuarters([]report{
		{"F", time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"F", time.Date(2021, 3, 31, 0, 0, 0, 0, time.UTC)},
		{"F", time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"G", time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)},
	}, func(r report) (string, time.Time) { return r.id, r.at })

	assert.Equal(t, map[string]map[quarter.Quarter]struct{}{
		"F": {202103: {}, 202106: {}},
		"G": {202012: {}},
	}, got)
}
