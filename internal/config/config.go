package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	Alpaca  AlpacaConfig  `mapstructure:"alpaca"`
	Chart   ChartConfig   `mapstructure:"chart"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// GatewayConfig covers both sides of the gateway: the port it serves on
// and the URL the dashboard reaches it at.
type GatewayConfig struct {
	Port         int    `mapstructure:"port"`
	URL          string `mapstructure:"url"`
	Timeout      int    `mapstructure:"timeout"`
	TradeLogPath string `mapstructure:"trade_log_path"`
}

type AlpacaConfig struct {
	Env          string `mapstructure:"env"` // "paper" or "live"
	PaperBaseURL string `mapstructure:"paper_base_url"`
	LiveBaseURL  string `mapstructure:"live_base_url"`
	DataBaseURL  string `mapstructure:"data_base_url"`
	APIKeyID     string `mapstructure:"api_key_id"`
	APISecret    string `mapstructure:"api_secret"`
}

// TradingBaseURL picks the trading host for the configured environment.
func (a AlpacaConfig) TradingBaseURL() string {
	if a.Env == "live" {
		return a.LiveBaseURL
	}
	return a.PaperBaseURL
}

type ChartConfig struct {
	DefaultTimeframe string `mapstructure:"default_timeframe"`
	BarLimit         int    `mapstructure:"bar_limit"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/minibroker")
	}

	v.SetEnvPrefix("DESK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Gateway defaults
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.url", "http://localhost:8080")
	v.SetDefault("gateway.timeout", 30)
	v.SetDefault("gateway.trade_log_path", "./data/tradelog")

	// Alpaca defaults
	v.SetDefault("alpaca.env", "paper")
	v.SetDefault("alpaca.paper_base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.live_base_url", "https://api.alpaca.markets")
	v.SetDefault("alpaca.data_base_url", "https://data.alpaca.markets")

	// Chart defaults
	v.SetDefault("chart.default_timeframe", "1Day")
	v.SetDefault("chart.bar_limit", 200)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
}

func overrideFromEnv(config *Config) {
	if keyID := os.Getenv("ALPACA_API_KEY_ID"); keyID != "" {
		config.Alpaca.APIKeyID = keyID
	}
	if secret := os.Getenv("ALPACA_API_SECRET"); secret != "" {
		config.Alpaca.APISecret = secret
	}
	if env := os.Getenv("ALPACA_ENV"); env != "" {
		config.Alpaca.Env = env
	}
	if url := os.Getenv("GATEWAY_URL"); url != "" {
		config.Gateway.URL = url
	}
}
