package model

import (
	"cmp"
	"slices"
	"time"

	"github.com/sells-group/ownership-cli/internal/quarter"
)

// SourceKind names the data source a position value was taken from.
type SourceKind string

const (
	SourceFiling  SourceKind = "regulatory-filing"
	SourceStakes  SourceKind = "stakes-disclosure"
	SourceFundSum SourceKind = "fund-sum"
)

// Measure selects the unit positions are expressed in.
type Measure string

const (
	MeasureShares      Measure = "adjusted_shares"
	MeasureMarketValue Measure = "market_value" // USD
)

// Pair is a (security, holder) combination.
type Pair struct {
	SecurityID string
	HolderID   string
}

// Key identifies a position cell.
type Key struct {
	SecurityID string
	HolderID   string
	Quarter    quarter.Quarter
}

// Pair drops the quarter from the key.
func (k Key) Pair() Pair {
	return Pair{SecurityID: k.SecurityID, HolderID: k.HolderID}
}

// Position is one reconciled (security, holder, quarter) value.
type Position struct {
	SecurityID string          `json:"security_id"`
	HolderID   string          `json:"holder_id"`
	Quarter    quarter.Quarter `json:"quarter"`
	Value      float64         `json:"value"`
	Source     SourceKind      `json:"source_kind"`
	ObservedAt time.Time       `json:"observation_date"`
	Scheme     Scheme          `json:"scheme"`
	Imputed    bool            `json:"imputed,omitempty"`
}

// Key returns the position's cell key.
func (p Position) Key() Key {
	return Key{SecurityID: p.SecurityID, HolderID: p.HolderID, Quarter: p.Quarter}
}

// CompareKeys orders keys by security, holder, then quarter.
func CompareKeys(a, b Key) int {
	if c := cmp.Compare(a.SecurityID, b.SecurityID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.HolderID, b.HolderID); c != 0 {
		return c
	}
	return cmp.Compare(a.Quarter, b.Quarter)
}

// SortPositions orders positions by key, then value, in place.
func SortPositions(ps []Position) {
	slices.SortStableFunc(ps, func(a, b Position) int {
		if c := CompareKeys(a.Key(), b.Key()); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
}

// Origin records which ownership series a panel row came from.
type Origin string

const (
	OriginFiling Origin = "filing"
	OriginFund   Origin = "fund"
	OriginBoth   Origin = "both"
)

// PanelRow is one row of the company-level ownership panel.
type PanelRow struct {
	CompanyID     string          `json:"company_id"`
	InstitutionID string          `json:"institution_id"`
	Quarter       quarter.Quarter `json:"quarter"`
	Ratio         float64         `json:"ownership_ratio"`
	Scheme        Scheme          `json:"scheme_tag"`
	MarketValue   *float64        `json:"market_value,omitempty"` // USD millions
	Origin        Origin          `json:"origin"`
}

// SortPanel orders rows by company, institution, then quarter, in place.
func SortPanel(rows []PanelRow) {
	slices.SortStableFunc(rows, func(a, b PanelRow) int {
		if c := cmp.Compare(a.CompanyID, b.CompanyID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.InstitutionID, b.InstitutionID); c != 0 {
			return c
		}
		return cmp.Compare(a.Quarter, b.Quarter)
	})
}
