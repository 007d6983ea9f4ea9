// =============================================================================
// LLMLab Configuration Loader
// =============================================================================
// Unified configuration loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("LLMLAB").
//	    Load()
//
// Priority: defaults -> YAML file -> environment variables
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Core configuration tree
// =============================================================================

// Config is the complete LLMLab configuration tree.
type Config struct {
	// Server holds HTTP listener settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Database holds the primary GORM connection settings.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis backs the external response-cache backend. Unused when
	// Cache.Backend is "in_process".
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Cache configures the Response Cache (§4.3 of the design).
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Encryption holds the key used to seal provider credential secrets.
	Encryption EncryptionConfig `yaml:"encryption" env:"ENCRYPTION"`

	// JWT configures bearer-token authentication for owned endpoints.
	JWT JWTConfig `yaml:"jwt" env:"JWT"`

	// GitHub configures the OAuth code exchange used by POST /auth/github.
	GitHub GitHubConfig `yaml:"github" env:"GITHUB"`

	// Providers sets the upstream request timeout; its base URL fields
	// are not read.
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Pool is loaded but not read by any component; the post-hook
	// dispatcher uses a fixed worker count and queue size.
	Pool PoolConfig `yaml:"pool" env:"POOL"`

	// Budget is loaded but not read by any component.
	Budget BudgetConfig `yaml:"budget" env:"BUDGET"`

	// Anomaly is loaded but not read by any component; Validate checks
	// its ZScoreThreshold.
	Anomaly AnomalyConfig `yaml:"anomaly" env:"ANOMALY"`

	// Forecast is loaded but not read by any component.
	Forecast ForecastConfig `yaml:"forecast" env:"FORECAST"`

	// Log configures zap logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OpenTelemetry tracing/metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimitRPS/Burst bound the per-IP token bucket applied to every API request.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// AllowedOrigins is the CORS allow-list. Empty means no cross-origin access.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// DatabaseConfig holds the primary relational store settings.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
}

// RedisConfig holds connection settings for the external cache backend.
type RedisConfig struct {
	Addr                string        `yaml:"addr" env:"ADDR"`
	Password            string        `yaml:"password" env:"PASSWORD"`
	DB                  int           `yaml:"db" env:"DB"`
	PoolSize            int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns        int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	MaxRetries          int           `yaml:"max_retries" env:"MAX_RETRIES"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// CacheConfig configures the Response Cache.
type CacheConfig struct {
	// Backend selects "in_process" (LRU+TTL) or "redis" (external KV).
	Backend string `yaml:"backend" env:"BACKEND"`
	// MaxEntries bounds the in-process LRU; ignored by the redis backend.
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// DefaultTTL is the TTL given to every cached entry.
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// KeyPrefix is not read; the redis backend uses a fixed key prefix.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// EncryptionConfig holds the AES-256-GCM key protecting stored credentials.
type EncryptionConfig struct {
	// KeyBase64 is a 32-byte key, base64-encoded. Read from env in production.
	KeyBase64 string `yaml:"key_base64" env:"KEY_BASE64"`
}

// JWTConfig configures bearer-token verification for owned endpoints, and
// the minting parameters used by POST /auth/github to issue sessions.
type JWTConfig struct {
	Algorithm    string        `yaml:"algorithm" env:"ALGORITHM"` // HS256 or RS256
	Secret       string        `yaml:"secret" env:"SECRET"`       // HS256 shared secret
	PublicKeyPEM string        `yaml:"public_key_pem" env:"PUBLIC_KEY_PEM"` // RS256 public key
	Issuer       string        `yaml:"issuer" env:"ISSUER"`
	Audience     string        `yaml:"audience" env:"AUDIENCE"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// GitHubConfig holds the OAuth app credentials used to exchange an
// authorization code for the caller's GitHub identity.
type GitHubConfig struct {
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`
}

// ProvidersConfig holds upstream adapter settings. Only RequestTimeout is
// read; each adapter uses a fixed base URL, so the BaseURL fields are not.
type ProvidersConfig struct {
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	OpenAIBaseURL    string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url" env:"ANTHROPIC_BASE_URL"`
	GoogleBaseURL    string        `yaml:"google_base_url" env:"GOOGLE_BASE_URL"`
}

// PoolConfig holds worker-pool sizes. No component reads it; the
// post-hook dispatcher's sizes are fixed.
type PoolConfig struct {
	MaxWorkers  int           `yaml:"max_workers" env:"MAX_WORKERS"`
	QueueSize   int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// BudgetConfig holds rolling-spend watcher settings. No component reads it.
type BudgetConfig struct {
	CheckInterval  time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"`
	WindowDays     int           `yaml:"window_days" env:"WINDOW_DAYS"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout" env:"WEBHOOK_TIMEOUT"`
}

// AnomalyConfig holds Z-score anomaly detector settings. Only Validate
// reads it (ZScoreThreshold); the detector does not.
type AnomalyConfig struct {
	CheckInterval   time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"`
	LookbackDays    int           `yaml:"lookback_days" env:"LOOKBACK_DAYS"`
	ZScoreThreshold float64       `yaml:"zscore_threshold" env:"ZSCORE_THRESHOLD"`
	TokenSurgeRatio float64       `yaml:"token_surge_ratio" env:"TOKEN_SURGE_RATIO"`
}

// ForecastConfig holds daily-cost OLS forecaster settings. No component
// reads it.
type ForecastConfig struct {
	LookbackDays  int `yaml:"lookback_days" env:"LOOKBACK_DAYS"`
	ForecastDays  int `yaml:"forecast_days" env:"FORECAST_DAYS"`
	MinDataPoints int `yaml:"min_data_points" env:"MIN_DATA_POINTS"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader is a builder for assembling a Config from defaults, a YAML file,
// and environment variable overrides.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "LLMLAB",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load assembles the final Config: defaults -> YAML file -> environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads configuration, panicking on failure. Intended for main().
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Cache.Backend != "in_process" && c.Cache.Backend != "redis" {
		errs = append(errs, "cache.backend must be in_process or redis")
	}
	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when cache.backend is redis")
	}
	if c.Encryption.KeyBase64 == "" {
		errs = append(errs, "encryption.key_base64 is required")
	}
	if c.JWT.Algorithm != "HS256" && c.JWT.Algorithm != "RS256" {
		errs = append(errs, "jwt.algorithm must be HS256 or RS256")
	}
	if c.JWT.Algorithm == "HS256" && c.JWT.Secret == "" {
		errs = append(errs, "jwt.secret is required for HS256")
	}
	if c.JWT.Algorithm == "RS256" && c.JWT.PublicKeyPEM == "" {
		errs = append(errs, "jwt.public_key_pem is required for RS256")
	}
	if c.Anomaly.ZScoreThreshold <= 0 {
		errs = append(errs, "anomaly.zscore_threshold must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the driver-appropriate database connection string.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
