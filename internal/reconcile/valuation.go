package reconcile

import (
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
)

// PriceKey identifies a security's price for one quarter.
type PriceKey struct {
	SecurityID string
	Quarter    quarter.Quarter
}

// QuarterPrices returns the last usable price per (security, quarter).
// Observations without a positive unadjusted price are skipped, and an
// adjusted price of zero is read as missing.
func QuarterPrices(prices []model.Price) map[PriceKey]model.Price {
	usable := make([]model.Price, 0, len(prices))
	for _, p := range prices {
		if _, ok := model.Positive(p.UnadjPrice); !ok {
			continue
		}
		if p.AdjPrice != nil && *p.AdjPrice == 0 {
			p.AdjPrice = nil
		}
		usable = append(usable, p)
	}
	return Latest(usable,
		func(p model.Price) PriceKey {
			return PriceKey{SecurityID: p.SecurityID, Quarter: quarter.FromDate(p.PriceDate)}
		},
		func(p model.Price) Reading {
			return Reading{At: p.PriceDate, Primary: p.UnadjPrice, Secondary: p.AdjPrice}
		},
	)
}

// TerminationQuarters returns the last priced quarter per security.
func TerminationQuarters(prices map[PriceKey]model.Price) map[string]quarter.Quarter {
	out := make(map[string]quarter.Quarter)
	for k := range prices {
		if k.Quarter > out[k.SecurityID] {
			out[k.SecurityID] = k.Quarter
		}
	}
	return out
}

// Valuer turns raw records into the measured value for a quarter: adjusted
// shares, or USD market value.
type Valuer struct {
	measure model.Measure
	prices  map[PriceKey]model.Price
}

// NewValuer builds a valuer. prices may be nil for the shares measure.
func NewValuer(measure model.Measure, prices map[PriceKey]model.Price) *Valuer {
	return &Valuer{measure: measure, prices: prices}
}

// Measure returns the unit the valuer produces.
func (v *Valuer) Measure() model.Measure { return v.measure }

func (v *Valuer) price(securityID string, q quarter.Quarter) (model.Price, bool) {
	p, ok := v.prices[PriceKey{SecurityID: securityID, Quarter: q}]
	return p, ok
}

// Filing values a filing row. In market-value mode the adjusted quantity is
// priced at the adjusted price, falling back to reported quantity times the
// unadjusted price.
func (v *Valuer) Filing(f model.Filing, q quarter.Quarter) *float64 {
	if v.measure != model.MeasureMarketValue {
		return f.AdjQuantity
	}
	p, ok := v.price(f.SecurityID, q)
	if !ok {
		return nil
	}
	if qty, ok := model.Positive(f.AdjQuantity); ok {
		if px, ok := model.Positive(p.AdjPrice); ok {
			return model.Float(qty * px)
		}
	}
	if qty, ok := model.Positive(f.ReportedQuantity); ok {
		if px, ok := model.Positive(p.UnadjPrice); ok {
			return model.Float(qty * px)
		}
	}
	return nil
}

// Stake values a stakes disclosure. Stakes quantities are split-adjusted, so
// only the adjusted price applies.
func (v *Valuer) Stake(s model.Stake, q quarter.Quarter) *float64 {
	if v.measure != model.MeasureMarketValue {
		return s.Quantity
	}
	p, ok := v.price(s.SecurityID, q)
	if !ok {
		return nil
	}
	qty, ok := model.Positive(s.Quantity)
	if !ok {
		return nil
	}
	px, ok := model.Positive(p.AdjPrice)
	if !ok {
		return nil
	}
	return model.Float(qty * px)
}

// Fund values a fund holding: adjusted shares, or the adjusted market value
// when positive, else the reported market value.
func (v *Valuer) Fund(h model.FundHolding) *float64 {
	if v.measure != model.MeasureMarketValue {
		return h.AdjQuantity
	}
	if mv, ok := model.Positive(h.AdjMarketValue); ok {
		return model.Float(mv)
	}
	return h.ReportedMarketValue
}
