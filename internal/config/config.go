package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Snapshot   SnapshotConfig   `yaml:"snapshot" mapstructure:"snapshot"`
	FTP        FTPConfig        `yaml:"ftp" mapstructure:"ftp"`
	Ownership  OwnershipConfig  `yaml:"ownership" mapstructure:"ownership"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SnapshotConfig locates the vendor snapshot the pipeline reads.
type SnapshotConfig struct {
	Format        string `yaml:"format" mapstructure:"format"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	FundShardSize int    `yaml:"fund_shard_size" mapstructure:"fund_shard_size"`
}

// FTPConfig configures the vendor snapshot download.
type FTPConfig struct {
	URL           string   `yaml:"url" mapstructure:"url"`
	User          string   `yaml:"user" mapstructure:"user"`
	Password      string   `yaml:"password" mapstructure:"password"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Files         []string `yaml:"files" mapstructure:"files"`
	RetryAttempts int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// OwnershipConfig holds the reconciliation and imputation policy.
type OwnershipConfig struct {
	Method            string   `yaml:"method" mapstructure:"method"`
	Measure           string   `yaml:"measure" mapstructure:"measure"`
	StartQuarter      int      `yaml:"start_quarter" mapstructure:"start_quarter"`
	EndQuarter        int      `yaml:"end_quarter" mapstructure:"end_quarter"`
	DomesticWindow    int      `yaml:"domestic_window" mapstructure:"domestic_window"`
	GlobalWindow      int      `yaml:"global_window" mapstructure:"global_window"`
	UKWindow          int      `yaml:"uk_window" mapstructure:"uk_window"`
	FilingWindow      int      `yaml:"filing_window" mapstructure:"filing_window"`
	UKSourceCodes     []string `yaml:"uk_source_codes" mapstructure:"uk_source_codes"`
	DomesticCountries []string `yaml:"domestic_countries" mapstructure:"domestic_countries"`
	HomeCountry       string   `yaml:"home_country" mapstructure:"home_country"`
	MaxWorkers        int      `yaml:"max_workers" mapstructure:"max_workers"`
	ImputeFilings     bool     `yaml:"impute_filings" mapstructure:"impute_filings"`
	HolderRatioCap    bool     `yaml:"holder_ratio_cap" mapstructure:"holder_ratio_cap"`
	ExclusionsFile    string   `yaml:"exclusions_file" mapstructure:"exclusions_file"`
}

// MonitoringConfig configures run log health checks.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MaxExcludedPairs     int     `yaml:"max_excluded_pairs" mapstructure:"max_excluded_pairs"`
}

// Method names.
const (
	MethodScheme        = "scheme"
	MethodFerreiraMatos = "ferreira_matos"
)

// Measure names.
const (
	MeasureMarketValue    = "market_value"
	MeasureAdjustedShares = "adjusted_shares"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OWNERSHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "ownership.db")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("snapshot.format", "csv")
	v.SetDefault("snapshot.dir", "data")
	v.SetDefault("snapshot.fund_shard_size", 250_000)
	v.SetDefault("ftp.url", "")
	v.SetDefault("ftp.user", "")
	v.SetDefault("ftp.password", "")
	v.SetDefault("ftp.timeout_secs", 60)
	v.SetDefault("ftp.files", []string{})
	v.SetDefault("ftp.retry_attempts", 3)
	v.SetDefault("ownership.method", MethodScheme)
	v.SetDefault("ownership.measure", MeasureMarketValue)
	v.SetDefault("ownership.start_quarter", 198809)
	v.SetDefault("ownership.end_quarter", 202312)
	v.SetDefault("ownership.domestic_window", 6)
	v.SetDefault("ownership.global_window", 7)
	v.SetDefault("ownership.uk_window", 6)
	v.SetDefault("ownership.filing_window", 7)
	v.SetDefault("ownership.uk_source_codes", []string{"W", "Q", "H"})
	v.SetDefault("ownership.domestic_countries", []string{"US", "CA"})
	v.SetDefault("ownership.home_country", "US")
	v.SetDefault("ownership.max_workers", 4)
	v.SetDefault("ownership.impute_filings", true)
	v.SetDefault("ownership.holder_ratio_cap", false)
	v.SetDefault("ownership.exclusions_file", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.lookback_window_hours", 24*7)
	v.SetDefault("monitoring.check_interval_secs", 3600)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.max_excluded_pairs", 0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
