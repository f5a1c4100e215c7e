// Package pipeline wires the reconciliation stages into one run: scheme
// classification, per-scheme resolution and gap fill, fund roll-up, scheme
// combination and company-level aggregation.
package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/aggregate"
	"github.com/sells-group/ownership-cli/internal/config"
	"github.com/sells-group/ownership-cli/internal/impute"
	"github.com/sells-group/ownership-cli/internal/model"
	"github.com/sells-group/ownership-cli/internal/quarter"
)

// Method selects how the ownership panel is assembled.
type Method string

const (
	// MethodScheme reconciles the four coverage schemes and sums the
	// union per company.
	MethodScheme Method = config.MethodScheme
	// MethodFerreiraMatos builds separate filing and fund series with
	// reporter-level imputation and merges them per company.
	MethodFerreiraMatos Method = config.MethodFerreiraMatos
)

// Policy is the complete, validated set of knobs a run uses.
type Policy struct {
	Method  Method
	Measure model.Measure
	Start   quarter.Quarter
	End     quarter.Quarter

	Windows       impute.Windows
	FilingWindow  int
	UKSourceCodes []string
	HomeCountry   string

	MaxWorkers     int
	ImputeFilings  bool
	HolderRatioCap bool
	Exclusions     aggregate.Exclusions
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Method:        MethodScheme,
		Measure:       model.MeasureMarketValue,
		Start:         198809,
		End:           202312,
		Windows:       impute.Windows{Domestic: 6, Global: 7, UK: 6, DomesticCountries: []string{"US", "CA"}},
		FilingWindow:  impute.DefaultCarryWindow,
		UKSourceCodes: []string{"W", "Q", "H"},
		HomeCountry:   "US",
		MaxWorkers:    4,
		ImputeFilings: true,
	}
}

// PolicyFromConfig validates the ownership section and builds a Policy,
// loading the market cap exclusions file when one is configured.
func PolicyFromConfig(cfg config.OwnershipConfig) (Policy, error) {
	if err := (&config.Config{Ownership: cfg}).ValidateOwnership(); err != nil {
		return Policy{}, err
	}
	excl, err := aggregate.LoadExclusions(cfg.ExclusionsFile)
	if err != nil {
		return Policy{}, eris.Wrap(err, "pipeline: load exclusions")
	}
	return Policy{
		Method:  Method(cfg.Method),
		Measure: model.Measure(cfg.Measure),
		Start:   quarter.Quarter(cfg.StartQuarter),
		End:     quarter.Quarter(cfg.EndQuarter),
		Windows: impute.Windows{
			Domestic:          cfg.DomesticWindow,
			Global:            cfg.GlobalWindow,
			UK:                cfg.UKWindow,
			DomesticCountries: cfg.DomesticCountries,
		},
		FilingWindow:   cfg.FilingWindow,
		UKSourceCodes:  cfg.UKSourceCodes,
		HomeCountry:    cfg.HomeCountry,
		MaxWorkers:     cfg.MaxWorkers,
		ImputeFilings:  cfg.ImputeFilings,
		HolderRatioCap: cfg.HolderRatioCap,
		Exclusions:     excl,
	}, nil
}
