// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/venuelabs/crossarb/internal/scaled"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Detection DetectionConfig `mapstructure:"detection"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Treasury  TreasuryConfig  `mapstructure:"treasury"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// BinanceConfig holds the Binance stream configuration.
type BinanceConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"` // wss://stream.binance.com:9443 or wss://stream.binance.us:9443 for US
	Symbols        []string      `mapstructure:"symbols"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

// EthereumConfig holds the on-chain pool feed configuration.
type EthereumConfig struct {
	HTTPURL      string        `mapstructure:"http_url"`
	ChainID      uint64        `mapstructure:"chain_id"`
	Pools        []PoolConfig  `mapstructure:"pools"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RPCRateLimit int           `mapstructure:"rpc_rate_limit"` // requests per second
}

// PoolConfig identifies one AMM pool to watch.
type PoolConfig struct {
	Address  string `mapstructure:"address"`
	Protocol string `mapstructure:"protocol"`
	FeeBps   int64  `mapstructure:"fee_bps"`
}

// AddressHex returns the pool address as common.Address.
func (p *PoolConfig) AddressHex() common.Address {
	return common.HexToAddress(p.Address)
}

// DetectionConfig holds opportunity detection thresholds.
type DetectionConfig struct {
	Pairs          []string      `mapstructure:"pairs"`
	MinSpreadBps   int64         `mapstructure:"min_spread_bps"`
	MinProfitBps   int64         `mapstructure:"min_profit_bps"`
	FixedCost      string        `mapstructure:"fixed_cost"` // decimal units
	MaxHops        int           `mapstructure:"max_hops"`
	ProbeSize      string        `mapstructure:"probe_size"` // decimal units
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	OpportunityTTL time.Duration `mapstructure:"opportunity_ttl"`
}

// FixedCostAmount parses the fixed per-trade cost.
func (c *DetectionConfig) FixedCostAmount() (scaled.Amount, error) {
	return scaled.ParseString(c.FixedCost)
}

// ProbeSizeAmount parses the detection probe trade size.
func (c *DetectionConfig) ProbeSizeAmount() (scaled.Amount, error) {
	return scaled.ParseString(c.ProbeSize)
}

// ScoringConfig holds opportunity ranking parameters, one weight per
// ranking criterion.
type ScoringConfig struct {
	Method           string  `mapstructure:"method"` // weighted_sum or topsis
	ValueWeight      float64 `mapstructure:"value_weight"`
	CostWeight       float64 `mapstructure:"cost_weight"`
	RiskWeight       float64 `mapstructure:"risk_weight"`
	TimeWeight       float64 `mapstructure:"time_weight"`
	ComplexityWeight float64 `mapstructure:"complexity_weight"`
	DiscountRate     float64 `mapstructure:"discount_rate"` // per-second expected value decay
}

// TreasuryConfig holds profit rotation and signing configuration.
type TreasuryConfig struct {
	MinRotationAmount  string              `mapstructure:"min_rotation_amount"` // decimal units
	RequiredSignatures int                 `mapstructure:"required_signatures"`
	EmergencyThreshold int                 `mapstructure:"emergency_threshold"`
	ActionTTL          time.Duration       `mapstructure:"action_ttl"`
	Destinations       []DestinationConfig `mapstructure:"destinations"`
	Signers            []SignerConfig      `mapstructure:"signers"`
}

// DestinationConfig declares one rotation destination.
type DestinationConfig struct {
	Address       string `mapstructure:"address"`
	Name          string `mapstructure:"name"`
	PercentageBps int64  `mapstructure:"percentage_bps"`
	Kind          string `mapstructure:"kind"`
	Active        bool   `mapstructure:"active"`
}

// SignerConfig declares one authorized signer.
type SignerConfig struct {
	ID      string `mapstructure:"id"`
	Address string `mapstructure:"address"`
	Role    string `mapstructure:"role"` // primary, backup, emergency
	Active  bool   `mapstructure:"active"`
}

// MinRotationAmountScaled parses the rotation threshold.
func (c *TreasuryConfig) MinRotationAmountScaled() (scaled.Amount, error) {
	return scaled.ParseString(c.MinRotationAmount)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	TraceProvider  string `mapstructure:"trace_provider"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	// Binance
	v.BindEnv("binance.websocket_url", "ARB_BINANCE_WS_URL", "BINANCE_WS_URL")
	v.BindEnv("binance.symbols", "ARB_BINANCE_SYMBOLS", "BINANCE_SYMBOLS")

	// Ethereum
	v.BindEnv("ethereum.http_url", "ARB_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "ARB_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Detection
	v.BindEnv("detection.pairs", "ARB_PAIRS")
	v.BindEnv("detection.min_spread_bps", "ARB_MIN_SPREAD_BPS")
	v.BindEnv("detection.min_profit_bps", "ARB_MIN_PROFIT_BPS")

	// Treasury
	v.BindEnv("treasury.min_rotation_amount", "ARB_MIN_ROTATION_AMOUNT")
	v.BindEnv("treasury.required_signatures", "ARB_REQUIRED_SIGNATURES")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.trace_provider", "ARB_OTEL_TRACE_PROVIDER")
	v.BindEnv("telemetry.otlp_headers", "ARB_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "crossarb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Binance defaults
	v.SetDefault("binance.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("binance.symbols", []string{"ETHUSDC"})
	v.SetDefault("binance.max_reconnects", 10)
	v.SetDefault("binance.initial_backoff", "1s")
	v.SetDefault("binance.max_backoff", "30s")
	v.SetDefault("binance.idle_timeout", "60s")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.poll_interval", "12s") // one mainnet block
	v.SetDefault("ethereum.rpc_rate_limit", 10)

	// Detection defaults
	v.SetDefault("detection.pairs", []string{"ETH/USDC"})
	v.SetDefault("detection.min_spread_bps", 10)
	v.SetDefault("detection.min_profit_bps", 5)
	v.SetDefault("detection.fixed_cost", "0")
	v.SetDefault("detection.max_hops", 4)
	v.SetDefault("detection.probe_size", "1")
	v.SetDefault("detection.stale_after", "5s")
	v.SetDefault("detection.opportunity_ttl", "30s")

	// Scoring defaults
	v.SetDefault("scoring.method", "weighted_sum")
	v.SetDefault("scoring.value_weight", 0.35)
	v.SetDefault("scoring.cost_weight", 0.1)
	v.SetDefault("scoring.risk_weight", 0.25)
	v.SetDefault("scoring.time_weight", 0.2)
	v.SetDefault("scoring.complexity_weight", 0.1)
	v.SetDefault("scoring.discount_rate", 0.01)

	// Treasury defaults
	v.SetDefault("treasury.min_rotation_amount", "1")
	v.SetDefault("treasury.required_signatures", 3)
	v.SetDefault("treasury.emergency_threshold", 2)
	v.SetDefault("treasury.action_ttl", "24h")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.trace_provider", "empty")
	v.SetDefault("telemetry.service_name", "crossarb")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Binance.WebSocketURL == "" {
		return fmt.Errorf("binance.websocket_url is required")
	}
	if len(c.Binance.Symbols) == 0 {
		return fmt.Errorf("binance.symbols cannot be empty")
	}
	for _, p := range c.Ethereum.Pools {
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("invalid ethereum pool address: %s", p.Address)
		}
		if p.FeeBps < 0 || p.FeeBps >= 10000 {
			return fmt.Errorf("pool %s: fee_bps %d out of range [0, 10000)", p.Address, p.FeeBps)
		}
	}
	if c.Detection.MaxHops < 2 {
		return fmt.Errorf("detection.max_hops must be at least 2")
	}
	if _, err := c.Detection.FixedCostAmount(); err != nil {
		return fmt.Errorf("invalid detection.fixed_cost: %w", err)
	}
	if _, err := c.Detection.ProbeSizeAmount(); err != nil {
		return fmt.Errorf("invalid detection.probe_size: %w", err)
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	return c.validateTreasury()
}

func (c *Config) validateScoring() error {
	switch c.Scoring.Method {
	case "weighted_sum", "topsis":
	default:
		return fmt.Errorf("scoring.method must be weighted_sum or topsis, got %q", c.Scoring.Method)
	}
	total := c.Scoring.ValueWeight + c.Scoring.CostWeight + c.Scoring.RiskWeight +
		c.Scoring.TimeWeight + c.Scoring.ComplexityWeight
	if total <= 0 {
		return fmt.Errorf("scoring weights must sum to a positive value")
	}
	return nil
}

func (c *Config) validateTreasury() error {
	if c.Treasury.RequiredSignatures < 1 {
		return fmt.Errorf("treasury.required_signatures must be at least 1")
	}
	if c.Treasury.EmergencyThreshold < 2 {
		return fmt.Errorf("treasury.emergency_threshold must be at least 2")
	}
	if c.Treasury.EmergencyThreshold >= c.Treasury.RequiredSignatures {
		return fmt.Errorf("treasury.emergency_threshold (%d) must be below required_signatures (%d)",
			c.Treasury.EmergencyThreshold, c.Treasury.RequiredSignatures)
	}
	if _, err := c.Treasury.MinRotationAmountScaled(); err != nil {
		return fmt.Errorf("invalid treasury.min_rotation_amount: %w", err)
	}

	if len(c.Treasury.Destinations) > 0 {
		var activeBps int64
		for _, d := range c.Treasury.Destinations {
			if !common.IsHexAddress(d.Address) {
				return fmt.Errorf("invalid destination address: %s", d.Address)
			}
			if d.PercentageBps < 0 || d.PercentageBps > 10000 {
				return fmt.Errorf("destination %s: percentage_bps %d out of range", d.Name, d.PercentageBps)
			}
			if d.Active {
				activeBps += d.PercentageBps
			}
		}
		if activeBps != 10000 {
			return fmt.Errorf("active destination percentages sum to %d bps, must be exactly 10000", activeBps)
		}
	}

	seen := make(map[string]bool, len(c.Treasury.Signers))
	for _, s := range c.Treasury.Signers {
		if s.ID == "" {
			return fmt.Errorf("signer id cannot be empty")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate signer id: %s", s.ID)
		}
		seen[s.ID] = true
		switch s.Role {
		case "primary", "backup", "emergency":
		default:
			return fmt.Errorf("signer %s: role must be primary, backup, or emergency", s.ID)
		}
	}
	return nil
}
