// Package config defines the global configuration structure for the weather
// API. Configuration is loaded once at process start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes startup to fail.
package config

import (
	"time"

	"weatherapi/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"weatherapi"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server   ServerConfig
	Mongo    MongoConfig
	MQTT     MQTTConfig
	AWS      AWSConfig
	Security SecurityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s" validate:"gt=0"`
}

// MongoConfig holds the record store connection and resilience settings.
type MongoConfig struct {
	// Resolved from SSM or Env
	URI SecretString `envconfig:"MONGO_URI" validate:"required,mongo_uri"`

	Database   string `envconfig:"MONGO_DATABASE" default:"weather" validate:"required"`
	Collection string `envconfig:"MONGO_COLLECTION" default:"weatherData" validate:"required"`

	// Tuning Parameters
	ConnectTimeout time.Duration `envconfig:"MONGO_CONNECT_TIMEOUT" default:"10s" validate:"gt=0"`
	QueryTimeout   time.Duration `envconfig:"MONGO_QUERY_TIMEOUT" default:"15s" validate:"gt=0"`
	MaxPoolSize    uint64        `envconfig:"MONGO_MAX_POOL_SIZE" default:"50"`

	// Circuit breaker around store round-trips. The breaker opens after
	// BreakerFailures consecutive failures and probes again after BreakerTimeout.
	BreakerFailures uint32        `envconfig:"MONGO_BREAKER_FAILURES" default:"5" validate:"gt=0"`
	BreakerTimeout  time.Duration `envconfig:"MONGO_BREAKER_TIMEOUT" default:"30s"`
}

// MQTTConfig holds the optional telemetry ingest subscriber settings.
type MQTTConfig struct {
	Enabled  bool   `envconfig:"MQTT_ENABLED" default:"false"`
	Broker   string `envconfig:"MQTT_BROKER" default:"localhost"`
	Port     int    `envconfig:"MQTT_PORT" default:"1883" validate:"gt=0,lte=65535"`
	ClientID string `envconfig:"MQTT_CLIENT_ID" default:"weatherapi"`
	Topic    string `envconfig:"MQTT_TOPIC" default:"weather/readings"`
	QoS      byte   `envconfig:"MQTT_QOS" default:"1" validate:"lte=2"`
}

// AWSConfig holds regional configuration for SSM secret resolution.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitRPS       float64  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst     int      `envconfig:"RATE_LIMIT_BURST" default:"40"`

	// TrustedProxies lists the CIDRs of load balancers whose X-Forwarded-For
	// entries are believed. Empty means the peer address is the client.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES" validate:"dive,cidr"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
