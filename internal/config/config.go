// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Transport selects how block notifications are delivered.
const (
	TransportEthclient = "ethclient" // go-ethereum native subscription
	TransportRawWS     = "rawws"     // raw JSON-RPC eth_subscribe over wsconn
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Contract  ContractConfig  `mapstructure:"contract"`
	Keeper    KeeperConfig    `mapstructure:"keeper"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"`
	HTTPURL        string        `mapstructure:"http_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	Transport      string        `mapstructure:"transport"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
}

// ContractConfig holds the paymaster contract and owner key settings.
type ContractConfig struct {
	Address         string `mapstructure:"address"`
	OwnerPrivateKey string `mapstructure:"owner_private_key"`
	GasLimit        uint64 `mapstructure:"gas_limit"`
}

// AddressHex returns the contract address as common.Address.
func (c *ContractConfig) AddressHex() common.Address {
	return common.HexToAddress(c.Address)
}

// KeeperConfig holds the decision thresholds and lifecycle limits.
// Thresholds are integer percentages of the contract price; buffers are
// integer percentages applied to the network price when repricing.
type KeeperConfig struct {
	UpwardThresholdPct   uint64 `mapstructure:"upward_threshold_pct"`
	DownwardThresholdPct uint64 `mapstructure:"downward_threshold_pct"`
	UpwardBufferPct      uint64 `mapstructure:"upward_buffer_pct"`
	DownwardBufferPct    uint64 `mapstructure:"downward_buffer_pct"`
	MaxWaitBlocks        uint64 `mapstructure:"max_wait_blocks"`
	MaxRetries           uint32 `mapstructure:"max_retries"`
	TUIMode              bool   `mapstructure:"-"` // Set at runtime, not from config file
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("GK")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
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
	v.BindEnv("app.name", "GK_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "GK_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "GK_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.websocket_url", "GK_ETH_WS_URL", "ETH_WS_URL", "WS_URL")
	v.BindEnv("ethereum.http_url", "GK_ETH_HTTP_URL", "ETH_HTTP_URL", "API_URL")
	v.BindEnv("ethereum.chain_id", "GK_ETH_CHAIN_ID", "ETH_CHAIN_ID")
	v.BindEnv("ethereum.transport", "GK_ETH_TRANSPORT", "ETH_TRANSPORT")

	// Contract
	v.BindEnv("contract.address", "GK_CONTRACT_ADDRESS", "CONTRACT_ADDRESS")
	v.BindEnv("contract.owner_private_key", "GK_OWNER_PRIVATE_KEY", "OWNER_PRIVATE_KEY")
	v.BindEnv("contract.gas_limit", "GK_CONTRACT_GAS_LIMIT")

	// Keeper
	v.BindEnv("keeper.upward_threshold_pct", "GK_UPWARD_THRESHOLD_PCT")
	v.BindEnv("keeper.downward_threshold_pct", "GK_DOWNWARD_THRESHOLD_PCT")
	v.BindEnv("keeper.upward_buffer_pct", "GK_UPWARD_BUFFER_PCT")
	v.BindEnv("keeper.downward_buffer_pct", "GK_DOWNWARD_BUFFER_PCT")
	v.BindEnv("keeper.max_wait_blocks", "GK_MAX_WAIT_BLOCKS")
	v.BindEnv("keeper.max_retries", "GK_MAX_RETRIES")

	// Telemetry
	v.BindEnv("telemetry.enabled", "GK_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "GK_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "GK_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "gas-keeper")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.transport", TransportEthclient)
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")
	v.SetDefault("ethereum.poll_interval", "12s") // ~1 block time
	v.SetDefault("ethereum.rate_limit_rps", 10)

	// Contract defaults
	v.SetDefault("contract.gas_limit", 120_000)

	// Keeper defaults: trigger outside the +/-20% band, reprice at
	// 120%/110% of the network price to keep margin between updates.
	v.SetDefault("keeper.upward_threshold_pct", 120)
	v.SetDefault("keeper.downward_threshold_pct", 80)
	v.SetDefault("keeper.upward_buffer_pct", 120)
	v.SetDefault("keeper.downward_buffer_pct", 110)
	v.SetDefault("keeper.max_wait_blocks", 10)
	v.SetDefault("keeper.max_retries", 3)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "gas-keeper")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration. Violations are startup-fatal.
func (c *Config) Validate() error {
	if c.Ethereum.WebSocketURL == "" && c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("at least one of ethereum.websocket_url and ethereum.http_url is required")
	}
	if c.Ethereum.Transport != TransportEthclient && c.Ethereum.Transport != TransportRawWS {
		return fmt.Errorf("invalid ethereum.transport: %s", c.Ethereum.Transport)
	}
	if c.Ethereum.Transport == TransportRawWS && c.Ethereum.WebSocketURL == "" {
		return fmt.Errorf("ethereum.websocket_url is required for the rawws transport")
	}
	if !common.IsHexAddress(c.Contract.Address) {
		return fmt.Errorf("invalid contract.address: %s", c.Contract.Address)
	}
	if c.Contract.OwnerPrivateKey == "" {
		return fmt.Errorf("contract.owner_private_key is required")
	}
	return c.Keeper.Validate()
}

// Validate checks the threshold invariants: the downward threshold must sit
// below 100%, the upward threshold above it, and buffers must not shave the
// network price.
func (c *KeeperConfig) Validate() error {
	if c.DownwardThresholdPct >= 100 {
		return fmt.Errorf("keeper.downward_threshold_pct must be < 100, got %d", c.DownwardThresholdPct)
	}
	if c.UpwardThresholdPct <= 100 {
		return fmt.Errorf("keeper.upward_threshold_pct must be > 100, got %d", c.UpwardThresholdPct)
	}
	if c.UpwardBufferPct < 100 {
		return fmt.Errorf("keeper.upward_buffer_pct must be >= 100, got %d", c.UpwardBufferPct)
	}
	if c.DownwardBufferPct < 100 {
		return fmt.Errorf("keeper.downward_buffer_pct must be >= 100, got %d", c.DownwardBufferPct)
	}
	if c.MaxWaitBlocks == 0 {
		return fmt.Errorf("keeper.max_wait_blocks must be > 0")
	}
	if c.MaxRetries == 0 {
		return fmt.Errorf("keeper.max_retries must be > 0")
	}
	return nil
}
