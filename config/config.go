package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the analysis squad service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultHorizon string        `mapstructure:"default_horizon"` // Scalp, Swing, Invest
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model key to use for different worker roles
type LLMRoutingConfig struct {
	Analysis   string `mapstructure:"analysis"`   // chartist, quant, scout, fundamentalist
	Synthesis  string `mapstructure:"synthesis"`  // executioner
	Validation string `mapstructure:"validation"` // risk officer
	Chat       string `mapstructure:"chat"`
	Fallback   string `mapstructure:"fallback"`
}

// WorkersConfig contains analysis worker settings
type WorkersConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxToolRounds int           `mapstructure:"max_tool_rounds"`
	MaxRetries    int           `mapstructure:"max_retries"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
}

// ToolsConfig contains market data and news tool settings
type ToolsConfig struct {
	MarketDataBaseURL string        `mapstructure:"market_data_base_url"`
	NewsFeedURL       string        `mapstructure:"news_feed_url"`
	SerperAPIKey      string        `mapstructure:"serper_api_key"`
	MaxNewsResults    int           `mapstructure:"max_news_results"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains monitoring settings
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	CostAlerts  bool    `mapstructure:"cost_alerts"`
	DailyBudget float64 `mapstructure:"daily_budget_usd"`
}

// SchedulerConfig contains watchlist re-analysis settings
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DefaultCron  string        `mapstructure:"default_cron"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// DSN builds a Postgres connection string from the config.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// LoadConfig reads configuration from file and environment.
// Environment variables use the TRADESQUAD_ prefix with underscores,
// e.g. TRADESQUAD_STORAGE_POSTGRES_URL.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.default_horizon", "Swing")
	viper.SetDefault("general.default_timeout", 90*time.Second)
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("workers.max_concurrent", 5)
	viper.SetDefault("workers.max_tool_rounds", 3)
	viper.SetDefault("workers.max_retries", 3)
	viper.SetDefault("workers.worker_timeout", 120*time.Second)
	viper.SetDefault("tools.market_data_base_url", "https://stooq.com")
	viper.SetDefault("tools.max_news_results", 10)
	viper.SetDefault("tools.timeout", 15*time.Second)
	viper.SetDefault("tools.cache_ttl", 60*time.Second)
	viper.SetDefault("scheduler.default_cron", "@daily")
	viper.SetDefault("scheduler.tick_interval", time.Hour)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("TRADESQUAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults plus env are enough to run.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error reading config file: %w", err))
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("fatal error unmarshalling config: %w", err))
	}

	// API keys prefer explicit env vars over file contents.
	for name, p := range cfg.LLM.Providers {
		if p.APIKey == "" {
			switch p.Type {
			case "openai":
				p.APIKey = os.Getenv("OPENAI_API_KEY")
			case "anthropic":
				p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			}
			cfg.LLM.Providers[name] = p
		}
	}
	if cfg.Tools.SerperAPIKey == "" {
		cfg.Tools.SerperAPIKey = os.Getenv("SERPER_API_KEY")
	}

	return &cfg
}
