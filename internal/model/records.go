package model

import "time"

// Filing is one row of a periodic regulatory (13F-style) holdings report.
// Nil quantities are null in the source table.
type Filing struct {
	HolderID         string    `json:"holder_id"`
	SecurityID       string    `json:"security_id"`
	ReportDate       time.Time `json:"report_date"`
	AdjQuantity      *float64  `json:"adjusted_quantity,omitempty"`
	ReportedQuantity *float64  `json:"reported_quantity,omitempty"`
	AdjMarketValue   *float64  `json:"market_value_adjusted,omitempty"`
}

// Stake is an ad hoc ownership disclosure.
type Stake struct {
	HolderID   string    `json:"holder_id"`
	SecurityID string    `json:"security_id"`
	AsOfDate   time.Time `json:"as_of_date"`
	Quantity   *float64  `json:"quantity,omitempty"`
	SourceCode string    `json:"source_code"`
}

// FundHolding is one row of a fund holdings report.
type FundHolding struct {
	FundID              string    `json:"fund_id"`
	SecurityID          string    `json:"security_id"`
	ReportDate          time.Time `json:"report_date"`
	AdjQuantity         *float64  `json:"adjusted_quantity,omitempty"`
	ReportedQuantity    *float64  `json:"reported_quantity,omitempty"`
	AdjMarketValue      *float64  `json:"market_value_adjusted,omitempty"`
	ReportedMarketValue *float64  `json:"market_value_reported,omitempty"`
}

// Price is one observation of the security price/shares series.
type Price struct {
	SecurityID  string    `json:"security_id"`
	PriceDate   time.Time `json:"price_date"`
	AdjPrice    *float64  `json:"adjusted_price,omitempty"`
	UnadjPrice  *float64  `json:"unadjusted_price,omitempty"`
	AdjShares   *float64  `json:"adjusted_shares_outstanding,omitempty"`
	UnadjShares *float64  `json:"unadjusted_shares_outstanding,omitempty"`
}

// Float returns a pointer to v. Handy for building nullable fields.
func Float(v float64) *float64 { return &v }

// Positive returns the value behind p when it is present and greater than
// zero. A zero or negative reading counts as no position.
func Positive(p *float64) (float64, bool) {
	if p == nil || *p <= 0 {
		return 0, false
	}
	return *p, true
}

// Deref returns the value behind p, or zero for nil.
func Deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
