package aggregate

import (
	"cmp"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
)

// Aggregator converts security-level holdings into the company-level
// ownership panel.
type Aggregator struct {
	Caps      MarketCaps
	Companies *CompanyMap
	Countries map[string]string // company -> listing country

	// HomeCountry names the market where filings are preferred over funds.
	HomeCountry string
	// HolderRatioCap drops security-level ratios above 1.0 when set.
	HolderRatioCap bool

	log *zap.Logger
}

// New builds an Aggregator.
func New(caps MarketCaps, companies *CompanyMap, countries map[string]string, home string) *Aggregator {
	return &Aggregator{
		Caps:        caps,
		Companies:   companies,
		Countries:   countries,
		HomeCountry: home,
		log:         zap.L().With(zap.String("component", "aggregate")),
	}
}

// RatioStats counts rows lost converting values to ratios.
type RatioStats struct {
	Input     int
	Unmapped  int // security without a company
	NoCap     int // company without a market cap in the quarter
	OverOne   int // dropped by HolderRatioCap
	Converted int
}

// Ratios converts market values (USD) into ownership ratios of the issuing
// company's market cap.
func (a *Aggregator) Ratios(ps []model.Position) ([]model.Position, RatioStats) {
	st := RatioStats{Input: len(ps)}
	out := make([]model.Position, 0, len(ps))
	for _, p := range ps {
		company, ok := a.Companies.Resolve(p.SecurityID, p.Quarter)
		if !ok {
			st.Unmapped++
			continue
		}
		mcap, ok := a.Caps.Get(company, p.Quarter)
		if !ok {
			st.NoCap++
			continue
		}
		r := p.Value / 1e6 / mcap
		if a.HolderRatioCap && r > 1 {
			st.OverOne++
			continue
		}
		cp := p
		cp.Value = r
		out = append(out, cp)
	}
	st.Converted = len(out)
	return out, st
}

// Series holds the two security-level ratio series to be merged.
type Series struct {
	Filing []model.Position
	Fund   []model.Position
}

// Stats summarises a Build.
type Stats struct {
	Unmapped   int
	NoCap      int
	FilingOnly int
	FundOnly   int
	Both       int
	Shrunk     int // company quarters rescaled to 100%
}

type panelKey struct {
	CompanyID     string
	InstitutionID string
	Quarter       quarter.Quarter
}

type side struct {
	ratio   float64
	schemes map[model.Scheme]struct{}
}

func (s *side) scheme() model.Scheme {
	if len(s.schemes) != 1 {
		return model.SchemeNone
	}
	for sc := range s.schemes {
		return sc
	}
	return model.SchemeNone
}

// sumByCompany adds ratios per (company, institution, quarter). Positions
// are summed in key order so results are reproducible.
func (a *Aggregator) sumByCompany(ps []model.Position, st *Stats) map[panelKey]*side {
	sorted := slices.Clone(ps)
	model.SortPositions(sorted)

	out := map[panelKey]*side{}
	for _, p := range sorted {
		company, ok := a.Companies.Resolve(p.SecurityID, p.Quarter)
		if !ok {
			st.Unmapped++
			continue
		}
		if _, ok := a.Caps.Get(company, p.Quarter); !ok {
			st.NoCap++
			continue
		}
		k := panelKey{CompanyID: company, InstitutionID: p.HolderID, Quarter: p.Quarter}
		s, ok := out[k]
		if !ok {
			s = &side{schemes: map[model.Scheme]struct{}{}}
			out[k] = s
		}
		s.ratio += p.Value
		s.schemes[p.Scheme] = struct{}{}
	}
	return out
}

// Build sums both series to company level, merges them and caps aggregate
// ownership of each company quarter at 100%.
//
// Where both series hold a ratio for the same institution, company and
// quarter, companies listed in HomeCountry take the filing ratio and all
// others take the larger of the two.
func (a *Aggregator) Build(s Series) ([]model.PanelRow, Stats) {
	var st Stats
	filing := a.sumByCompany(s.Filing, &st)
	fund := a.sumByCompany(s.Fund, &st)

	keys := map[panelKey]struct{}{}
	for k := range filing {
		keys[k] = struct{}{}
	}
	for k := range fund {
		keys[k] = struct{}{}
	}

	rows := make([]model.PanelRow, 0, len(keys))
	for k := range keys {
		f, hasF := filing[k]
		m, hasM := fund[k]
		row := model.PanelRow{CompanyID: k.CompanyID, InstitutionID: k.InstitutionID, Quarter: k.Quarter}
		switch {
		case hasF && hasM:
			st.Both++
			row.Origin = model.OriginBoth
			row.Ratio, row.Scheme = a.combine(k.CompanyID, f, m)
		case hasF:
			st.FilingOnly++
			row.Origin = model.OriginFiling
			row.Ratio, row.Scheme = f.ratio, f.scheme()
		default:
			st.FundOnly++
			row.Origin = model.OriginFund
			row.Ratio, row.Scheme = m.ratio, m.scheme()
		}
		if row.Ratio <= 0 {
			continue
		}
		rows = append(rows, row)
	}

	rows, st.Shrunk = Normalize(rows)
	for i := range rows {
		if mcap, ok := a.Caps.Get(rows[i].CompanyID, rows[i].Quarter); ok {
			mv := rows[i].Ratio * mcap
			rows[i].MarketValue = &mv
		}
	}
	model.SortPanel(rows)

	a.log.Debug("company panel built",
		zap.Int("rows", len(rows)),
		zap.Int("filing_only", st.FilingOnly),
		zap.Int("fund_only", st.FundOnly),
		zap.Int("both", st.Both),
		zap.Int("shrunk_company_quarters", st.Shrunk),
		zap.Int("unmapped", st.Unmapped),
		zap.Int("no_market_cap", st.NoCap),
	)
	return rows, st
}

func (a *Aggregator) combine(companyID string, f, m *side) (float64, model.Scheme) {
	if a.Countries[companyID] == a.HomeCountry {
		return f.ratio, f.scheme()
	}
	if m.ratio > f.ratio {
		return m.ratio, m.scheme()
	}
	return f.ratio, f.scheme()
}

// Normalize rescales every company quarter whose ratios sum above 1.0 so
// that they sum to exactly 1.0. It returns a new slice and the number of
// company quarters rescaled.
func Normalize(rows []model.PanelRow) ([]model.PanelRow, int) {
	out := slices.Clone(rows)
	idx := map[CompanyQuarter][]int{}
	for i, r := range out {
		k := CompanyQuarter{CompanyID: r.CompanyID, Quarter: r.Quarter}
		idx[k] = append(idx[k], i)
	}

	shrunk := 0
	for _, k := range slices.SortedFunc(maps.Keys(idx), compareCompanyQuarters) {
		members := idx[k]
		slices.SortFunc(members, func(a, b int) int {
			return cmp.Compare(out[a].InstitutionID, out[b].InstitutionID)
		})
		total := 0.0
		for _, i := range members {
			total += out[i].Ratio
		}
		if total <= 1 {
			continue
		}
		shrunk++
		for _, i := range members {
			out[i].Ratio /= total
		}
	}
	return out, shrunk
}

func compareCompanyQuarters(a, b CompanyQuarter) int {
	if c := cmp.Compare(a.CompanyID, b.CompanyID); c != 0 {
		return c
	}
	return cmp.Compare(a.Quarter, b.Quarter)
}
