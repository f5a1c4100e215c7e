package snapshot

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/model"
)

// row is one input record addressed by column name. fetcher.Record and the
// parquet reader's rows both satisfy it.
type row interface {
	Get(name string) string
}

// required lists the columns each table must carry. Other columns are
// read when present.
var required = map[string][]string{
	TableHolders:      {"holder_id", "is_regulatory_filer"},
	TableSecurities:   {"security_id", "is_domestic_reportable", "is_cross_border_reportable", "is_uk_reportable", "country_code"},
	TableFundLinks:    {"fund_id", "institution_id"},
	TableFilerLinks:   {"filer_id", "institution_id"},
	TableFilings:      {"holder_id", "security_id", "report_date", "adjusted_quantity"},
	TableStakes:       {"holder_id", "security_id", "as_of_date", "quantity", "source_code"},
	TableFundHoldings: {"fund_id", "security_id", "report_date", "adjusted_quantity", "reported_quantity"},
	TablePrices:       {"security_id", "price_date", "adjusted_price", "unadjusted_price", "adjusted_shares_outstanding", "unadjusted_shares_outstanding"},
	TableCompanyLinks: {"security_id", "company_id"},
}

// optional tables may be absent from a snapshot.
var optional = map[string]bool{
	TableFilerLinks:   true,
	TableStakes:       true,
	TableFundLinks:    true,
	TableFundHoldings: true,
	TableCompanyLinks: true,
}

// floats parses several nullable numeric columns, stopping at the first error.
func floats(r row, cols ...string) ([]*float64, error) {
	out := make([]*float64, len(cols))
	for i, c := range cols {
		v, err := parseFloat(r.Get(c))
		if err != nil {
			return nil, eris.Wrapf(err, "column %s", c)
		}
		out[i] = v
	}
	return out, nil
}

func requireID(r row, col string) (string, error) {
	id := strings.TrimSpace(r.Get(col))
	if id == "" {
		return "", eris.Errorf("snapshot: empty %s", col)
	}
	return id, nil
}

func decodeHolder(r row) (model.Holder, error) {
	id, err := requireID(r, "holder_id")
	if err != nil {
		return model.Holder{}, err
	}
	filer, err := parseBool(r.Get("is_regulatory_filer"))
	if err != nil {
		return model.Holder{}, err
	}
	return model.Holder{ID: id, RegulatoryFiler: filer}, nil
}

func decodeSecurity(r row) (model.Security, error) {
	id, err := requireID(r, "security_id")
	if err != nil {
		return model.Security{}, err
	}
	s := model.Security{
		ID:              id,
		Country:         strings.ToUpper(r.Get("country_code")),
		CompanyID:       r.Get("company_id"),
		IssueType:       strings.ToUpper(r.Get("issue_type")),
		SecurityType:    strings.ToUpper(r.Get("security_type")),
		PrimaryEquityID: r.Get("primary_equity_id"),
	}
	flags := []struct {
		col string
		dst *bool
	}{
		{"is_domestic_reportable", &s.DomesticReportable},
		{"is_cross_border_reportable", &s.CrossBorderReportable},
		{"is_uk_reportable", &s.UKReportable},
		{"active", &s.Active},
	}
	for _, f := range flags {
		if *f.dst, err = parseBool(r.Get(f.col)); err != nil {
			return model.Security{}, eris.Wrapf(err, "column %s", f.col)
		}
	}
	return s, nil
}

func decodeFundLink(r row) (model.FundLink, error) {
	fund, err := requireID(r, "fund_id")
	if err != nil {
		return model.FundLink{}, err
	}
	inst, err := requireID(r, "institution_id")
	if err != nil {
		return model.FundLink{}, err
	}
	return model.FundLink{FundID: fund, InstitutionID: inst}, nil
}

func decodeFilerLink(r row) (model.FilerLink, error) {
	filer, err := requireID(r, "filer_id")
	if err != nil {
		return model.FilerLink{}, err
	}
	inst, err := requireID(r, "institution_id")
	if err != nil {
		return model.FilerLink{}, err
	}
	return model.FilerLink{FilerID: filer, InstitutionID: inst}, nil
}

func decodeFiling(r row) (model.Filing, error) {
	d, err := parseDate(r.Get("report_date"))
	if err != nil {
		return model.Filing{}, err
	}
	v, err := floats(r, "adjusted_quantity", "reported_quantity", "market_value_adjusted")
	if err != nil {
		return model.Filing{}, err
	}
	return model.Filing{
		HolderID:         r.Get("holder_id"),
		SecurityID:       r.Get("security_id"),
		ReportDate:       d,
		AdjQuantity:      v[0],
		ReportedQuantity: v[1],
		AdjMarketValue:   v[2],
	}, nil
}

func decodeStake(r row) (model.Stake, error) {
	d, err := parseDate(r.Get("as_of_date"))
	if err != nil {
		return model.Stake{}, err
	}
	q, err := parseFloat(r.Get("quantity"))
	if err != nil {
		return model.Stake{}, err
	}
	return model.Stake{
		HolderID:   r.Get("holder_id"),
		SecurityID: r.Get("security_id"),
		AsOfDate:   d,
		Quantity:   q,
		SourceCode: strings.ToUpper(r.Get("source_code")),
	}, nil
}

func decodeFundHolding(r row) (model.FundHolding, error) {
	d, err := parseDate(r.Get("report_date"))
	if err != nil {
		return model.FundHolding{}, err
	}
	v, err := floats(r, "adjusted_quantity", "reported_quantity", "market_value_adjusted", "market_value_reported")
	if err != nil {
		return model.FundHolding{}, err
	}
	return model.FundHolding{
		FundID:              r.Get("fund_id"),
		SecurityID:          r.Get("security_id"),
		ReportDate:          d,
		AdjQuantity:         v[0],
		ReportedQuantity:    v[1],
		AdjMarketValue:      v[2],
		ReportedMarketValue: v[3],
	}, nil
}

func decodePrice(r row) (model.Price, error) {
	d, err := parseDate(r.Get("price_date"))
	if err != nil {
		return model.Price{}, err
	}
	v, err := floats(r, "adjusted_price", "unadjusted_price", "adjusted_shares_outstanding", "unadjusted_shares_outstanding")
	if err != nil {
		return model.Price{}, err
	}
	return model.Price{
		SecurityID:  r.Get("security_id"),
		PriceDate:   d,
		AdjPrice:    v[0],
		UnadjPrice:  v[1],
		AdjShares:   v[2],
		UnadjShares: v[3],
	}, nil
}

func decodeCompanyLink(r row) (model.CompanyLink, error) {
	sec, err := requireID(r, "security_id")
	if err != nil {
		return model.CompanyLink{}, err
	}
	company, err := requireID(r, "company_id")
	if err != nil {
		return model.CompanyLink{}, err
	}
	start, err := parseOptionalDate(r.Get("start_date"))
	if err != nil {
		return model.CompanyLink{}, err
	}
	end, err := parseOptionalDate(r.Get("end_date"))
	if err != nil {
		return model.CompanyLink{}, err
	}
	return model.CompanyLink{SecurityID: sec, CompanyID: company, Start: start, End: end}, nil
}
