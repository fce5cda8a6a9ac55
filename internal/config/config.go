package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig `mapstructure:"server"`
	Log           LogConfig    `mapstructure:"log"`
	RateSource    string       `mapstructure:"rate_source"`
	ProvidersFile string       `mapstructure:"providers_file"`
	// StaticRowsFile feeds rate_source=static; empty serves no rows.
	StaticRowsFile string         `mapstructure:"static_rows_file"`
	Airtable       AirtableConfig `mapstructure:"airtable"`
	Database       DatabaseConfig `mapstructure:"database"`
	Cache          CacheConfig    `mapstructure:"cache"`
	Pricing        PricingConfig  `mapstructure:"pricing"`
	Auth           AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	// File enables rotated file output in addition to stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type AirtableConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	PageSize   int           `mapstructure:"page_size"`
}

type DatabaseConfig struct {
	URL              string        `mapstructure:"url"`
	MaxConns         int32         `mapstructure:"max_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

type CacheConfig struct {
	Provider string        `mapstructure:"provider"` // "memory" or "redis"
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"`
	RedisDB  int           `mapstructure:"redis_db"`
	Prefix   string        `mapstructure:"prefix"`
}

type PricingConfig struct {
	ExchangeRate        float64 `mapstructure:"exchange_rate"` // CNY per USD
	EURPerUSD           float64 `mapstructure:"eur_per_usd"`
	ServiceFeeUSD       float64 `mapstructure:"service_fee_usd"`
	DomesticShippingUSD float64 `mapstructure:"domestic_shipping_usd"`
	DefaultIncrementKg  float64 `mapstructure:"default_increment_kg"`
}

type AuthConfig struct {
	Required  bool          `mapstructure:"required"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
	Users     []UserConfig  `mapstructure:"users"`
	// SeedDemoUsers adds the built-in admin and employee accounts.
	SeedDemoUsers bool `mapstructure:"seed_demo_users"`
}

type UserConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Phone        string `mapstructure:"phone"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
	Department   string `mapstructure:"department"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("rate_source", "airtable")
	v.SetDefault("providers_file", "")
	v.SetDefault("static_rows_file", "")

	v.SetDefault("airtable.api_key", "")
	v.SetDefault("airtable.base_url", "https://api.airtable.com/v0")
	v.SetDefault("airtable.timeout", 15*time.Second)
	v.SetDefault("airtable.max_retries", 3)
	v.SetDefault("airtable.page_size", 100)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.statement_timeout", 10*time.Second)

	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.prefix", "parcelquote:")

	v.SetDefault("pricing.exchange_rate", 7.0)
	v.SetDefault("pricing.eur_per_usd", 0.92)
	v.SetDefault("pricing.service_fee_usd", 1.20)
	v.SetDefault("pricing.domestic_shipping_usd", 1.00)
	v.SetDefault("pricing.default_increment_kg", 0.01)

	v.SetDefault("auth.required", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "parcelquote")
	v.SetDefault("auth.seed_demo_users", false)
}

// Load reads an optional YAML file and applies environment overrides on top of
// the defaults. An empty path means environment and defaults only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Short names kept from the original deployment scripts.
	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("rate_source", "RATE_SOURCE", "RATE_PROVIDER")
	_ = v.BindEnv("airtable.api_key", "AIRTABLE_API_KEY")
	_ = v.BindEnv("cache.redis_url", "REDIS_URL")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("log.level", "LOG_LEVEL")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config failed: %w", err)
	}
	cfg.RateSource = strings.ToLower(strings.TrimSpace(cfg.RateSource))
	cfg.Cache.Provider = strings.ToLower(strings.TrimSpace(cfg.Cache.Provider))
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.RateSource {
	case "airtable":
		if strings.TrimSpace(c.Airtable.APIKey) == "" {
			return fmt.Errorf("airtable.api_key is required when rate_source=airtable")
		}
	case "postgres":
		if strings.TrimSpace(c.Database.URL) == "" {
			return fmt.Errorf("database.url is required when rate_source=postgres")
		}
	case "static":
	default:
		return fmt.Errorf("unsupported rate_source %q", c.RateSource)
	}
	switch c.Cache.Provider {
	case "memory", "":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisURL) == "" {
			return fmt.Errorf("cache.redis_url is required when cache.provider=redis")
		}
	default:
		return fmt.Errorf("unsupported cache.provider %q", c.Cache.Provider)
	}
	if c.Pricing.ExchangeRate <= 0 {
		return fmt.Errorf("pricing.exchange_rate must be positive")
	}
	if c.Auth.Required && strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth.required=true")
	}
	return nil
}
