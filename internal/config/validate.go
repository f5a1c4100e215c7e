package config

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ownership-cli/internal/quarter"
)

// Validate checks the settings a command mode depends on. Modes are the
// command names: run, classify, migrate, status, fetch and export.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	needStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				add("store.sqlite_path is required for the sqlite driver")
			}
		default:
			add("store.driver must be postgres or sqlite")
		}
	}
	needSnapshot := func() {
		if c.Snapshot.Dir == "" {
			add("snapshot.dir is required")
		}
		if !slices.Contains([]string{"csv", "parquet"}, c.Snapshot.Format) {
			add("snapshot.format must be csv or parquet")
		}
		if c.Snapshot.FundShardSize <= 0 {
			add("snapshot.fund_shard_size must be > 0")
		}
	}

	switch mode {
	case "run":
		needStore()
		needSnapshot()
		c.validateOwnership(add)
	case "classify":
		needSnapshot()
	case "migrate":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres driver")
		}
	case "status":
		needStore()
		if c.Monitoring.LookbackWindowHours <= 0 {
			add("monitoring.lookback_window_hours must be > 0")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			add("monitoring.failure_rate_threshold must be within [0, 1]")
		}
	case "export":
		needStore()
	case "fetch":
		if c.FTP.URL == "" {
			add("ftp.url is required")
		}
		if len(c.FTP.Files) == 0 {
			add("ftp.files must list at least one file")
		}
		if c.FTP.RetryAttempts < 1 {
			add("ftp.retry_attempts must be >= 1")
		}
		if c.Snapshot.Dir == "" {
			add("snapshot.dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateOwnership(add func(string)) {
	o := c.Ownership
	if o.Method != MethodScheme && o.Method != MethodFerreiraMatos {
		add("ownership.method must be scheme or ferreira_matos")
	}
	if o.Measure != MeasureMarketValue && o.Measure != MeasureAdjustedShares {
		add("ownership.measure must be market_value or adjusted_shares")
	}
	if o.Method == MethodFerreiraMatos && o.Measure != MeasureMarketValue {
		add("ownership.method ferreira_matos requires measure market_value")
	}
	if !quarter.Quarter(o.StartQuarter).Valid() || !quarter.Quarter(o.EndQuarter).Valid() {
		add("ownership.start_quarter and end_quarter must be YYYYMM quarter-end keys")
	} else if o.StartQuarter > o.EndQuarter {
		add("ownership.start_quarter must not be after end_quarter")
	}
	windows := []struct {
		name string
		v    int
	}{
		{"domestic_window", o.DomesticWindow},
		{"global_window", o.GlobalWindow},
		{"uk_window", o.UKWindow},
		{"filing_window", o.FilingWindow},
	}
	for _, w := range windows {
		if w.v <= 0 {
			add("ownership." + w.name + " must be > 0")
		}
	}
	if o.MaxWorkers < 1 || o.MaxWorkers > 64 {
		add("ownership.max_workers must be between 1 and 64")
	}
	if o.HomeCountry == "" {
		add("ownership.home_country is required")
	}
}

// ValidateOwnership checks the ownership section on its own.
func (c *Config) ValidateOwnership() error {
	var problems []string
	c.validateOwnership(func(msg string) { problems = append(problems, msg) })
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
