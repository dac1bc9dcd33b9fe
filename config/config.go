// Package config loads settings from an optional YAML file, a .env file and
// OPTIONS_YIELD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "OPTIONS_YIELD"

// Config represents the complete application configuration
type Config struct {
	Alpaca   AlpacaConfig   `mapstructure:"alpaca"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AlpacaConfig holds the market data credentials and endpoints
type AlpacaConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	APISecret       string        `mapstructure:"api_secret"`
	TradingURL      string        `mapstructure:"trading_url"` // hosts /v2/options/contracts
	DataURL         string        `mapstructure:"data_url"`
	Feed            string        `mapstructure:"feed"` // "iex" or "sip"
	EnrichSnapshots bool          `mapstructure:"enrich_snapshots"`
	PageLimit       int           `mapstructure:"page_limit"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// HasCredentials reports whether both keys are set
func (c AlpacaConfig) HasCredentials() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr is the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds calculation history settings
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ChainConfig bounds the option chain selection
type ChainConfig struct {
	SidePolicy     string `mapstructure:"side_policy"` // "calls", "position" or "both"
	MaxExpirations int    `mapstructure:"max_expirations"`
	WindowBelow    int    `mapstructure:"window_below"`
	WindowAbove    int    `mapstructure:"window_above"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // "text" or "json"
}

// Load reads the configuration. An empty path searches ./config.yaml,
// ./config/config.yaml and ~/.options-yield/config.yaml; none of them has to
// exist. An explicit path must exist. Environment variables override file
// values, e.g. OPTIONS_YIELD_SERVER_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath(filepath.Join(homeDir(), ".options-yield"))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment.
// A missing file is not an error; existing variables are not overwritten.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s file: %w", path, err)
	}
	return nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Chain.SidePolicy {
	case "calls", "position", "both":
	default:
		return fmt.Errorf("invalid chain side policy %q", c.Chain.SidePolicy)
	}
	if c.Chain.MaxExpirations <= 0 {
		return fmt.Errorf("chain max expirations must be positive")
	}
	if c.Chain.WindowBelow < 0 || c.Chain.WindowAbove < 0 {
		return fmt.Errorf("chain strike window must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path required when the database is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("alpaca.api_key", "")
	v.SetDefault("alpaca.api_secret", "")
	v.SetDefault("alpaca.trading_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.data_url", "https://data.alpaca.markets")
	v.SetDefault("alpaca.feed", "iex")
	v.SetDefault("alpaca.enrich_snapshots", false)
	v.SetDefault("alpaca.page_limit", 100)
	v.SetDefault("alpaca.timeout", "30s")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.path", "./data/options-yield.db")

	v.SetDefault("chain.side_policy", "calls")
	v.SetDefault("chain.max_expirations", 5)
	v.SetDefault("chain.window_below", 7)
	v.SetDefault("chain.window_above", 7)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv honours the variable names the Alpaca SDKs use
func overrideFromEnv(cfg *Config) {
	if cfg.Alpaca.APIKey == "" {
		cfg.Alpaca.APIKey = os.Getenv("APCA_API_KEY_ID")
	}
	if cfg.Alpaca.APISecret == "" {
		cfg.Alpaca.APISecret = os.Getenv("APCA_API_SECRET_KEY")
	}
	if url := os.Getenv("APCA_API_BASE_URL"); url != "" && os.Getenv(envPrefix+"_ALPACA_TRADING_URL") == "" {
		cfg.Alpaca.TradingURL = url
	}
	if url := os.Getenv("APCA_API_DATA_URL"); url != "" && os.Getenv(envPrefix+"_ALPACA_DATA_URL") == "" {
		cfg.Alpaca.DataURL = url
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
