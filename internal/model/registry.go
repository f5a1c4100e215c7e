package model

import "time"

// Scheme identifies the reconciliation policy applied to a holder/security pair.
type Scheme int

const (
	SchemeNone             Scheme = 0 // pair is excluded from every scheme
	SchemeFilerDomestic    Scheme = 1 // regulatory filer x domestic-reportable security
	SchemeFilerCrossBorder Scheme = 2 // regulatory filer x cross-border-reportable security
	SchemeCatchAll         Scheme = 3
	SchemeUKDisclosure     Scheme = 4 // UK-disclosure-reportable security, any holder
)

// Schemes lists the four reconciliation schemes in evaluation order.
var Schemes = []Scheme{SchemeFilerDomestic, SchemeFilerCrossBorder, SchemeCatchAll, SchemeUKDisclosure}

func (s Scheme) String() string {
	switch s {
	case SchemeFilerDomestic:
		return "filer_domestic"
	case SchemeFilerCrossBorder:
		return "filer_cross_border"
	case SchemeCatchAll:
		return "catch_all"
	case SchemeUKDisclosure:
		return "uk_disclosure"
	}
	return "none"
}

// Holder is an entry of the holder registry.
type Holder struct {
	ID              string `json:"holder_id"`
	RegulatoryFiler bool   `json:"is_regulatory_filer"`
}

// Security is an entry of the security registry.
type Security struct {
	ID                    string `json:"security_id"`
	DomesticReportable    bool   `json:"is_domestic_reportable"`
	CrossBorderReportable bool   `json:"is_cross_border_reportable"`
	UKReportable          bool   `json:"is_uk_reportable"`
	Country               string `json:"country_code"`

	// Attributes used for market cap and principal-security selection.
	CompanyID       string `json:"company_id,omitempty"`
	IssueType       string `json:"issue_type,omitempty"`    // EQ, PF, AD, ...
	SecurityType    string `json:"security_type,omitempty"` // SHARE, PREFEQ, ...
	Active          bool   `json:"active,omitempty"`
	PrimaryEquityID string `json:"primary_equity_id,omitempty"`
}

// Issue types recognised by the market cap builder.
const (
	IssueEquity     = "EQ"
	IssuePreferred  = "PF"
	IssueDepositary = "AD"

	SecurityTypeShare     = "SHARE"
	SecurityTypePreferred = "PREFEQ"
)

// FundLink maps a fund to its managing institution.
type FundLink struct {
	FundID        string `json:"fund_id"`
	InstitutionID string `json:"institution_id"`
}

// FilerLink maps a regulatory filer to the institution it rolls up to.
type FilerLink struct {
	FilerID       string `json:"filer_id"`
	InstitutionID string `json:"institution_id"`
}

// CompanyLink maps a security to its issuing company. Start and End are set
// for time-sliced links; a nil End means the link is still open.
type CompanyLink struct {
	SecurityID string     `json:"security_id"`
	CompanyID  string     `json:"company_id"`
	Start      *time.Time `json:"start_date,omitempty"`
	End        *time.Time `json:"end_date,omitempty"`
}

// Sliced reports whether the link carries a validity window.
func (l CompanyLink) Sliced() bool {
	return l.Start != nil || l.End != nil
}

// Covers reports whether t falls inside the link's validity window.
func (l CompanyLink) Covers(t time.Time) bool {
	if l.Start != nil && t.Before(*l.Start) {
		return false
	}
	if l.End != nil && t.After(*l.End) {
		return false
	}
	return true
}
