package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"tokengallery/internal/domain"
)

// Config holds the complete configuration for the token gallery service
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Debug        bool               `mapstructure:"debug"`
	Server       ServerConfig       `mapstructure:"server"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTPPort     int           `mapstructure:"http_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// ProvidersConfig contains one section per upstream indexing source
type ProvidersConfig struct {
	TzKT  ProviderConfig `mapstructure:"tzkt"`
	Objkt ProviderConfig `mapstructure:"objkt"`
}

// ProviderConfig contains the knobs for one provider instance
type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Priority          int           `mapstructure:"priority"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	Backoff           string        `mapstructure:"backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
}

// CacheConfig contains cache store configuration
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis configuration for the shared cache backend
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	// TTL is a deployment-level policy; zero means entries never expire
	// implicitly.
	TTL time.Duration `mapstructure:"ttl"`
}

// OrchestratorConfig contains orchestration behavior configuration
type OrchestratorConfig struct {
	EnableFallback  bool                `mapstructure:"enable_fallback"`
	DefaultPageSize int                 `mapstructure:"default_page_size"`
	HealthInterval  time.Duration       `mapstructure:"health_interval"`
	DefaultFilters  domain.TokenFilters `mapstructure:"default_filters"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Load loads configuration from environment variables and config files
func Load() (Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/tokengallery")

	// Set default values
	setDefaults()

	// Enable environment variable binding
	viper.AutomaticEnv()
	viper.SetEnvPrefix("TOKENGALLERY")

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// General
	viper.SetDefault("environment", "development")
	viper.SetDefault("debug", false)

	// Server
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")

	// Providers
	viper.SetDefault("providers.tzkt.base_url", "https://api.tzkt.io")
	viper.SetDefault("providers.tzkt.priority", 1)
	viper.SetDefault("providers.tzkt.timeout", "10s")
	viper.SetDefault("providers.tzkt.max_retries", 3)
	viper.SetDefault("providers.tzkt.retry_delay", "500ms")
	viper.SetDefault("providers.tzkt.backoff", "exponential")
	viper.SetDefault("providers.tzkt.requests_per_second", 10)
	viper.SetDefault("providers.tzkt.burst_size", 5)

	viper.SetDefault("providers.objkt.base_url", "https://data.objkt.com/v3/graphql")
	viper.SetDefault("providers.objkt.priority", 2)
	viper.SetDefault("providers.objkt.timeout", "15s")
	viper.SetDefault("providers.objkt.max_retries", 3)
	viper.SetDefault("providers.objkt.retry_delay", "1s")
	viper.SetDefault("providers.objkt.backoff", "linear")
	viper.SetDefault("providers.objkt.requests_per_second", 5)
	viper.SetDefault("providers.objkt.burst_size", 2)

	// Cache
	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.redis.host", "localhost")
	viper.SetDefault("cache.redis.port", 6379)
	viper.SetDefault("cache.redis.password", "")
	viper.SetDefault("cache.redis.db", 0)
	viper.SetDefault("cache.redis.pool_size", 10)
	viper.SetDefault("cache.redis.ttl", "0s")

	// Orchestrator
	viper.SetDefault("orchestrator.enable_fallback", true)
	viper.SetDefault("orchestrator.default_page_size", 20)
	viper.SetDefault("orchestrator.health_interval", "30s")
	viper.SetDefault("orchestrator.default_filters.require_metadata", true)
	viper.SetDefault("orchestrator.default_filters.exclude_utility_tokens", true)
	viper.SetDefault("orchestrator.default_filters.exclude_high_decimals", true)
	viper.SetDefault("orchestrator.default_filters.max_supply", 10000)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
