package config

import (
	"QuoteLedger/internal/ingestion"
	"QuoteLedger/internal/observability"
	"QuoteLedger/internal/projection"
	"QuoteLedger/internal/strategy"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFundingInterval = time.Hour
	DefaultChannelSize     = 4096
	DefaultBatchSize       = 500
	DefaultFlushInterval   = time.Second
	DefaultReportPath      = "results/report.json"
)

// Config is the full description of one replay run.
type Config struct {
	Run             RunConfig                     `yaml:"run"`
	Sources         []SourceConfig                `yaml:"sources"`
	S3              ingestion.S3Config            `yaml:"s3"`
	Fees            map[string]map[string]float64 `yaml:"fees"`             // venue -> pair -> taker fee rate
	Symbols         map[string]map[string]*string `yaml:"symbols"`          // canonical -> venue -> native, null = unsupported
	InitialBalances map[string]map[string]float64 `yaml:"initial_balances"` // venue -> asset -> amount
	Outputs         OutputsConfig                 `yaml:"outputs"`
	Log             observability.LogConfig       `yaml:"log"`
	Server          ServerConfig                  `yaml:"server"`
}

type RunConfig struct {
	Name            string         `yaml:"name"`
	Strategy        string         `yaml:"strategy"`
	Params          map[string]any `yaml:"params"`
	PnLMetric       string         `yaml:"pnl_metric"`
	SettlementAsset string         `yaml:"settlement_asset"`
	FundingInterval time.Duration  `yaml:"funding_interval"`
	TieBreak        string         `yaml:"tie_break"`
	ChangesOnly     bool           `yaml:"changes_only"`
	Pairs           []string       `yaml:"pairs"`      // Empty: every pair found in the sources
	Perpetuals      []string       `yaml:"perpetuals"` // Pairs traded as perpetual contracts
	Require         []string       `yaml:"require"`    // "venue:pair" streams that must be non-empty
}

// SourceConfig is one quote log location. Exactly one of Path or Bucket is set.
type SourceConfig struct {
	Venue  string `yaml:"venue"`
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type OutputsConfig struct {
	ReportPath  string           `yaml:"report_path"`
	TradeLog    string           `yaml:"trade_log"` // Local parquet path, empty to skip
	S3Export    S3ExportConfig   `yaml:"s3_export"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	NATS        NATSConfig       `yaml:"nats"`
	CloudWatch  CloudWatchConfig `yaml:"cloudwatch"`
	ChannelSize int              `yaml:"channel_size"`
}

type S3ExportConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type PostgresConfig struct {
	URL           string        `yaml:"url"`
	Migrate       bool          `yaml:"migrate"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type NATSConfig struct {
	URL   string `yaml:"url"`
	Lossy bool   `yaml:"lossy"` // Drop envelopes instead of stalling the replay when NATS lags
}

type CloudWatchConfig struct {
	Namespace string `yaml:"namespace"`
	Region    string `yaml:"region"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"` // /metrics, /healthz, /readyz
	GRPCAddr string `yaml:"grpc_addr"` // gRPC health + reflection
}

// Load reads the YAML file at path, fills defaults, applies REPLAY_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Run.Name == "" {
		c.Run.Name = c.Run.Strategy
	}
	if c.Run.FundingInterval == 0 {
		c.Run.FundingInterval = DefaultFundingInterval
	}
	if c.Outputs.ReportPath == "" {
		c.Outputs.ReportPath = DefaultReportPath
	}
	if c.Outputs.ChannelSize == 0 {
		c.Outputs.ChannelSize = DefaultChannelSize
	}
	if c.Outputs.Postgres.BatchSize == 0 {
		c.Outputs.Postgres.BatchSize = DefaultBatchSize
	}
	if c.Outputs.Postgres.FlushInterval == 0 {
		c.Outputs.Postgres.FlushInterval = DefaultFlushInterval
	}
	c.Outputs.S3Export.Bucket = strings.TrimSpace(c.Outputs.S3Export.Bucket)
	for i := range c.Sources {
		c.Sources[i].Bucket = strings.TrimSpace(c.Sources[i].Bucket)
	}
}

// Validate checks the run can start. All errors name the offending key.
func (c *Config) Validate() error {
	if c.Run.Strategy == "" {
		return fmt.Errorf("run.strategy is required")
	}
	if c.Run.SettlementAsset == "" {
		return fmt.Errorf("run.settlement_asset is required")
	}
	if _, err := projection.ParsePnLMetric(c.Run.PnLMetric); err != nil {
		return fmt.Errorf("run.pnl_metric: %w", err)
	}
	if _, err := ingestion.ParseTieBreak(c.Run.TieBreak); err != nil {
		return fmt.Errorf("run.tie_break: %w", err)
	}
	if c.Run.FundingInterval < time.Second {
		return fmt.Errorf("run.funding_interval must be at least 1s, got %s", c.Run.FundingInterval)
	}
	for _, key := range c.Run.Require {
		if venue, pair, ok := strings.Cut(key, ":"); !ok || venue == "" || pair == "" {
			return fmt.Errorf("run.require entry %q must be venue:pair", key)
		}
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("sources must list at least one quote log")
	}
	for i, src := range c.Sources {
		switch {
		case src.Path != "" && src.Bucket != "":
			return fmt.Errorf("sources[%d]: path and bucket are mutually exclusive", i)
		case src.Path == "" && src.Bucket == "":
			return fmt.Errorf("sources[%d]: path or bucket is required", i)
		case src.Bucket != "" && !isValidS3Bucket(src.Bucket):
			return fmt.Errorf("sources[%d].bucket '%s' is invalid", i, src.Bucket)
		}
	}

	for venue, pairs := range c.Fees {
		for pair, rate := range pairs {
			if !(rate >= 0) || math.IsInf(rate, 0) {
				return fmt.Errorf("fees.%s.%s must be a non-negative rate, got %v", venue, pair, rate)
			}
		}
	}
	for venue, assets := range c.InitialBalances {
		for asset, amount := range assets {
			if math.IsNaN(amount) || math.IsInf(amount, 0) {
				return fmt.Errorf("initial_balances.%s.%s must be finite", venue, asset)
			}
		}
	}

	if b := c.Outputs.S3Export.Bucket; b != "" && !isValidS3Bucket(b) {
		return fmt.Errorf("outputs.s3_export.bucket '%s' is invalid", b)
	}
	if c.Outputs.ChannelSize < 0 {
		return fmt.Errorf("outputs.channel_size must not be negative")
	}
	if c.Outputs.Postgres.BatchSize < 0 {
		return fmt.Errorf("outputs.postgres.batch_size must not be negative")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

// PnLMetric returns the validated pnl metric.
func (c *Config) PnLMetric() projection.PnLMetric {
	m, _ := projection.ParsePnLMetric(c.Run.PnLMetric)
	return m
}

// MergeOptions returns the validated merge settings.
func (c *Config) MergeOptions() ingestion.MergeOptions {
	tb, _ := ingestion.ParseTieBreak(c.Run.TieBreak)
	return ingestion.MergeOptions{ChangesOnly: c.Run.ChangesOnly, TieBreak: tb}
}

// FeeTable returns nil when no fees are configured, which disables the
// missing_fee check.
func (c *Config) FeeTable() strategy.FeeTable {
	if len(c.Fees) == 0 {
		return nil
	}
	return strategy.FeeTable(c.Fees)
}

func (c *Config) SymbolMap() *ingestion.SymbolMap {
	return ingestion.NewSymbolMap(c.Symbols)
}

func (c *Config) StrategyParams() strategy.Params {
	perps := make(map[string]bool, len(c.Run.Perpetuals))
	for _, pair := range c.Run.Perpetuals {
		perps[pair] = true
	}
	return strategy.Params{
		Fees:       c.FeeTable(),
		Perpetuals: perps,
		Values:     c.Run.Params,
	}
}

// IngestionSources returns the sources in configuration order.
func (c *Config) IngestionSources() []ingestion.Source {
	out := make([]ingestion.Source, 0, len(c.Sources))
	for _, src := range c.Sources {
		out = append(out, ingestion.Source{
			Venue:  src.Venue,
			Path:   src.Path,
			Bucket: src.Bucket,
			Prefix: src.Prefix,
		})
	}
	return out
}

// UsesS3 reports whether any source or export needs an S3 client.
func (c *Config) UsesS3() bool {
	if c.Outputs.S3Export.Bucket != "" {
		return true
	}
	for _, src := range c.Sources {
		if src.Bucket != "" {
			return true
		}
	}
	return false
}

// RequiredStreams splits run.require into venue/pair tuples.
func (c *Config) RequiredStreams() [][2]string {
	out := make([][2]string, 0, len(c.Run.Require))
	for _, key := range c.Run.Require {
		venue, pair, _ := strings.Cut(key, ":")
		out = append(out, [2]string{venue, pair})
	}
	return out
}
