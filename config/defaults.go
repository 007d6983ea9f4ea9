// =============================================================================
// LLMLab Default Configuration
// =============================================================================
// Provides sane defaults for every configuration section.
// =============================================================================
package config

import "time"

// DefaultConfig returns a fully-populated configuration with production-sane
// defaults. Secrets (encryption key, JWT secret, database password) are left
// blank and must come from the environment or a mounted config file.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Cache:      DefaultCacheConfig(),
		Encryption: DefaultEncryptionConfig(),
		JWT:        DefaultJWTConfig(),
		GitHub:     DefaultGitHubConfig(),
		Providers:  DefaultProvidersConfig(),
		Pool:       DefaultPoolConfig(),
		Budget:     DefaultBudgetConfig(),
		Anomaly:    DefaultAnomalyConfig(),
		Forecast:   DefaultForecastConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns default HTTP server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		AllowedOrigins:  []string{},
	}
}

// DefaultDatabaseConfig returns default relational store settings.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "llmlab",
		Password:        "",
		Name:            "llmlab",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
	}
}

// DefaultRedisConfig returns default external-cache-backend settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		MaxRetries:          3,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultCacheConfig returns default Response Cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:    "in_process",
		MaxEntries: 10000,
		DefaultTTL: 10 * time.Minute,
		KeyPrefix:  "llmlab:cache:",
	}
}

// DefaultEncryptionConfig returns default credential encryption settings.
func DefaultEncryptionConfig() EncryptionConfig {
	return EncryptionConfig{
		KeyBase64: "",
	}
}

// DefaultJWTConfig returns default bearer-token verification settings.
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Algorithm: "HS256",
		Secret:    "",
		Issuer:    "llmlab",
		Audience:  "llmlab-api",
		TokenTTL:  24 * time.Hour,
	}
}

// DefaultGitHubConfig returns default OAuth app settings. Both fields are
// left blank and must come from the environment in any real deployment.
func DefaultGitHubConfig() GitHubConfig {
	return GitHubConfig{
		ClientID:     "",
		ClientSecret: "",
	}
}

// DefaultProvidersConfig returns default upstream provider adapter settings.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		RequestTimeout:   2 * time.Minute,
		OpenAIBaseURL:    "https://api.openai.com",
		AnthropicBaseURL: "https://api.anthropic.com",
		GoogleBaseURL:    "https://generativelanguage.googleapis.com",
	}
}

// DefaultPoolConfig returns default async post-hook worker pool settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxWorkers:  50,
		QueueSize:   500,
		IdleTimeout: 60 * time.Second,
	}
}

// DefaultBudgetConfig returns default budget watcher settings.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		CheckInterval:  5 * time.Minute,
		WindowDays:     30,
		WebhookTimeout: 10 * time.Second,
	}
}

// DefaultAnomalyConfig returns default spend-anomaly detector settings.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		CheckInterval:   15 * time.Minute,
		LookbackDays:    14,
		ZScoreThreshold: 3.0,
		TokenSurgeRatio: 3.0,
	}
}

// DefaultForecastConfig returns default cost-forecaster settings.
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		LookbackDays:  30,
		ForecastDays:  7,
		MinDataPoints: 7,
	}
}

// DefaultLogConfig returns default zap logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns default OpenTelemetry export settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "llmlab",
		SampleRate:   0.1,
	}
}
