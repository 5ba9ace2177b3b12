package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	Reasoning   ReasoningConfig   `mapstructure:"reasoning"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "console" or "json"
}

// ServerConfig contains HTTP/WebSocket server settings
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"` // optional built frontend to serve
}

// NegotiationConfig contains negotiation session settings
type NegotiationConfig struct {
	Rounds              int      `mapstructure:"rounds"`                // total rounds including the opening
	DisclosureFromRound int      `mapstructure:"disclosure_from_round"` // first round with peer disclosure
	Counterparties      []string `mapstructure:"counterparties"`        // empty = full catalog
	EventBuffer         int      `mapstructure:"event_buffer"`          // publisher queue depth
}

// ReasoningConfig contains reasoning service (LLM gateway) settings
type ReasoningConfig struct {
	Endpoint      string  `mapstructure:"endpoint"` // OpenAI-compatible chat completions URL
	APIKey        string  `mapstructure:"api_key"`
	Model         string  `mapstructure:"model"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Timeout       int     `mapstructure:"timeout"` // ms
	MaxRetries    int     `mapstructure:"max_retries"`
	EnableCaching bool    `mapstructure:"enable_caching"`
	CacheTTL      int     `mapstructure:"cache_ttl"` // seconds
}

// CatalogConfig contains catalog data settings
type CatalogConfig struct {
	Dir string `mapstructure:"dir"` // directory holding products.yaml / counterparties.yaml
}

// NATSConfig contains event bus settings
type NATSConfig struct {
	URL      string `mapstructure:"url"`
	Embedded bool   `mapstructure:"embedded"` // run an in-process server instead of dialing URL
}

// DatabaseConfig contains PostgreSQL settings for the outcome store
type DatabaseConfig struct {
	URL      string `mapstructure:"url"` // empty disables the outcome store
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the reasoning response cache
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("DEALDESK")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "DealDesk")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "")

	// Negotiation defaults
	v.SetDefault("negotiation.rounds", 3)
	v.SetDefault("negotiation.disclosure_from_round", 2)
	v.SetDefault("negotiation.counterparties", []string{})
	v.SetDefault("negotiation.event_buffer", 256)

	// Reasoning defaults
	v.SetDefault("reasoning.endpoint", "http://localhost:8081/v1/chat/completions")
	v.SetDefault("reasoning.model", "gpt-4o")
	v.SetDefault("reasoning.temperature", 0.7)
	v.SetDefault("reasoning.max_tokens", 2000)
	v.SetDefault("reasoning.timeout", 60000)
	v.SetDefault("reasoning.max_retries", 2)
	v.SetDefault("reasoning.enable_caching", false)
	v.SetDefault("reasoning.cache_ttl", 300)

	// Catalog defaults
	v.SetDefault("catalog.dir", "configs/catalog")

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.embedded", true)

	// Database defaults (outcome store disabled unless a URL is provided)
	v.SetDefault("database.url", "")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Negotiation.Rounds < 1 {
		return fmt.Errorf("negotiation.rounds must be at least 1, got %d", c.Negotiation.Rounds)
	}
	if c.Negotiation.DisclosureFromRound < 2 {
		return fmt.Errorf("negotiation.disclosure_from_round must be at least 2, got %d", c.Negotiation.DisclosureFromRound)
	}
	if c.Negotiation.EventBuffer < 1 {
		return fmt.Errorf("negotiation.event_buffer must be positive, got %d", c.Negotiation.EventBuffer)
	}
	if c.Reasoning.Endpoint == "" {
		return fmt.Errorf("reasoning.endpoint is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetServerAddr returns the HTTP server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the reasoning call timeout as time.Duration
func (c *ReasoningConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GetCacheTTL returns the reasoning cache TTL as time.Duration
func (c *ReasoningConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}
