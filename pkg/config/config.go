package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      store.Config
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Identity      IdentityConfig
	Catalog       CatalogConfig
	Assignment    AssignmentConfig
	Observability ObservabilityConfig
	Audit         AuditConfig
	Archive       ArchiveConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RedisConfig enables the rate limiter when URL is set
type RedisConfig struct {
	URL string
}

// RateLimitConfig sizes the per-principal fixed window
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// IdentityConfig selects how bearer tokens are verified. Static tokens are
// for local development and take precedence over OIDC when set.
type IdentityConfig struct {
	IssuerURL        string
	ClientID         string
	SkipIssuerCheck  bool
	UserInfoFallback bool
	CacheSize        int
	CacheTTL         time.Duration
	StaticTokens     string
}

// CatalogConfig points at an optional YAML role catalog
type CatalogConfig struct {
	File string
}

// AssignmentConfig tunes the conflict guard
type AssignmentConfig struct {
	MaxAttempts int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// AuditConfig routes audit write failures
type AuditConfig struct {
	DiagnosticFile  string
	DiagnosticLevel string
	WriteTimeout    time.Duration
}

// ArchiveConfig points audit exports at an S3-compatible bucket. Empty
// credentials fall back to the default AWS credential chain.
type ArchiveConfig struct {
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	Prefix         string
}

// Enabled reports whether a bucket is configured
func (a ArchiveConfig) Enabled() bool {
	return a.S3Bucket != ""
}

// OperatorConfig is the subset the maintenance CLI needs. It does not
// require identity settings.
type OperatorConfig struct {
	Database      store.Config
	Catalog       CatalogConfig
	Observability ObservabilityConfig
	Audit         AuditConfig
	Archive       ArchiveConfig
}

// LoadOperatorConfig loads the maintenance CLI configuration
func LoadOperatorConfig() (*OperatorConfig, error) {
	cfg := &OperatorConfig{
		Database:      loadDatabaseConfig(),
		Catalog:       CatalogConfig{File: getEnv("TENANTGUARD_CATALOG_FILE", "")},
		Observability: loadObservabilityConfig(),
		Audit:         loadAuditConfig(),
		Archive:       loadArchiveConfig(),
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if cfg.Audit.WriteTimeout <= 0 {
		return nil, fmt.Errorf("configuration validation failed: audit write timeout must be positive")
	}
	if err := cfg.Archive.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         RedisConfig{URL: getEnv("TENANTGUARD_REDIS_URL", "")},
		RateLimit:     loadRateLimitConfig(),
		Identity:      loadIdentityConfig(),
		Catalog:       CatalogConfig{File: getEnv("TENANTGUARD_CATALOG_FILE", "")},
		Assignment:    AssignmentConfig{MaxAttempts: getEnvInt("TENANTGUARD_ASSIGNMENT_MAX_ATTEMPTS", 3)},
		Observability: loadObservabilityConfig(),
		Audit:         loadAuditConfig(),
		Archive:       loadArchiveConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTGUARD_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTGUARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTGUARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTGUARD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TENANTGUARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTGUARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("TENANTGUARD_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("TENANTGUARD_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() store.Config {
	cfg := store.DefaultConfig()
	cfg.Driver = getEnv("TENANTGUARD_DB_DRIVER", cfg.Driver)
	cfg.URL = getEnv("TENANTGUARD_DB_URL", cfg.URL)
	if v := getEnvInt("TENANTGUARD_DB_MAX_OPEN_CONNS", 0); v > 0 {
		cfg.MaxOpenConns = v
	}
	if v := getEnvInt("TENANTGUARD_DB_MAX_IDLE_CONNS", 0); v > 0 {
		cfg.MaxIdleConns = v
	}
	cfg.ConnMaxLifetime = getEnvDuration("TENANTGUARD_DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	cfg.Timeout = getEnvDuration("TENANTGUARD_DB_TIMEOUT", cfg.Timeout)
	return cfg
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: getEnvInt("TENANTGUARD_RATE_LIMIT_REQUESTS", 600),
		Window:            getEnvDuration("TENANTGUARD_RATE_LIMIT_WINDOW", time.Minute),
	}
}

func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		IssuerURL:        getEnv("TENANTGUARD_OIDC_ISSUER_URL", ""),
		ClientID:         getEnv("TENANTGUARD_OIDC_CLIENT_ID", ""),
		SkipIssuerCheck:  getEnvBool("TENANTGUARD_OIDC_SKIP_ISSUER_CHECK", false),
		UserInfoFallback: getEnvBool("TENANTGUARD_OIDC_USERINFO_FALLBACK", false),
		CacheSize:        getEnvInt("TENANTGUARD_IDENTITY_CACHE_SIZE", 1024),
		CacheTTL:         getEnvDuration("TENANTGUARD_IDENTITY_CACHE_TTL", time.Minute),
		StaticTokens:     getEnv("TENANTGUARD_STATIC_TOKENS", ""),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		DiagnosticFile:  getEnv("TENANTGUARD_AUDIT_DIAGNOSTIC_FILE", ""),
		DiagnosticLevel: getEnv("TENANTGUARD_AUDIT_DIAGNOSTIC_LEVEL", "warn"),
		WriteTimeout:    getEnvDuration("TENANTGUARD_AUDIT_WRITE_TIMEOUT", 5*time.Second),
	}
}

func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		S3Bucket:       getEnv("TENANTGUARD_ARCHIVE_S3_BUCKET", ""),
		S3Region:       getEnv("TENANTGUARD_ARCHIVE_S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("TENANTGUARD_ARCHIVE_S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("TENANTGUARD_ARCHIVE_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("TENANTGUARD_ARCHIVE_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("TENANTGUARD_ARCHIVE_S3_USE_PATH_STYLE", false),
		Prefix:         getEnv("TENANTGUARD_ARCHIVE_PREFIX", "tenantguard"),
	}
}

func (a ArchiveConfig) validate() error {
	if !a.Enabled() {
		return nil
	}
	if a.S3Region == "" {
		return fmt.Errorf("archive S3 region is required when a bucket is set")
	}
	if (a.S3AccessKey == "") != (a.S3SecretKey == "") {
		return fmt.Errorf("archive S3 access key and secret key must be set together")
	}
	return nil
}

func validateDatabase(db store.Config) error {
	switch store.Dialect(db.Driver) {
	case store.DialectPostgres, store.DialectSQLite:
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", db.Driver)
	}
	if db.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	return nil
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("TENANTGUARD_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TENANTGUARD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TENANTGUARD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TENANTGUARD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TENANTGUARD_OTEL_SERVICE_NAME", "tenantguard"),
		OTelServiceVersion: getEnv("TENANTGUARD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TENANTGUARD_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := validateDatabase(c.Database); err != nil {
		return err
	}

	if c.Redis.URL != "" {
		if c.RateLimit.RequestsPerWindow <= 0 {
			return fmt.Errorf("rate limit requests must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	if c.Identity.StaticTokens == "" {
		if c.Identity.IssuerURL == "" || c.Identity.ClientID == "" {
			return fmt.Errorf("OIDC issuer URL and client ID are required unless static tokens are configured")
		}
	}
	if c.Identity.CacheSize < 0 || c.Identity.CacheTTL < 0 {
		return fmt.Errorf("identity cache size and TTL must not be negative")
	}

	if c.Assignment.MaxAttempts < 1 || c.Assignment.MaxAttempts > 5 {
		return fmt.Errorf("assignment max attempts must be between 1 and 5, got %d", c.Assignment.MaxAttempts)
	}

	if c.Audit.WriteTimeout <= 0 {
		return fmt.Errorf("audit write timeout must be positive")
	}

	if err := c.Archive.validate(); err != nil {
		return err
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health and metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
