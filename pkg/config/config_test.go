package config

import (
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TG_TEST_STR", "custom")
	t.Setenv("TG_TEST_BOOL", "1")
	t.Setenv("TG_TEST_INT", "42")
	t.Setenv("TG_TEST_BAD_INT", "forty")
	t.Setenv("TG_TEST_DUR", "90s")

	if got := getEnv("TG_TEST_STR", "default"); got != "custom" {
		t.Errorf("getEnv() = %v, want custom", got)
	}
	if got := getEnv("TG_TEST_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want default", got)
	}
	if !getEnvBool("TG_TEST_BOOL", false) {
		t.Error("getEnvBool() = false, want true")
	}
	if got := getEnvInt("TG_TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want 42", got)
	}
	if got := getEnvInt("TG_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() = %v, want fallback 7", got)
	}
	if got := getEnvDuration("TG_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TENANTGUARD_STATIC_TOKENS", "dev=admin@example.com")
	t.Setenv("TENANTGUARD_DB_DRIVER", "postgres")
	t.Setenv("TENANTGUARD_DB_URL", "postgres://localhost/tenantguard")
	t.Setenv("TENANTGUARD_ASSIGNMENT_MAX_ATTEMPTS", "5")
	t.Setenv("TENANTGUARD_LOG_LEVEL", "debug")
	t.Setenv("TENANTGUARD_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TENANTGUARD_RATE_LIMIT_REQUESTS", "50")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Database.Driver != string(store.DialectPostgres) {
		t.Errorf("driver = %s, want postgres", cfg.Database.Driver)
	}
	if cfg.Assignment.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Assignment.MaxAttempts)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("log level = %s, want DEBUG", cfg.Observability.LogLevel)
	}
	if cfg.RateLimit.RequestsPerWindow != 50 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" || cfg.Server.HealthAddr() != "0.0.0.0:9090" {
		t.Errorf("unexpected addresses %s %s", cfg.Server.Addr(), cfg.Server.HealthAddr())
	}
	if cfg.Audit.DiagnosticLevel != "warn" {
		t.Errorf("diagnostic level = %s, want warn", cfg.Audit.DiagnosticLevel)
	}
}

func validConfig() *Config {
	return &Config{
		Server:     ServerConfig{Port: "8080", HealthPort: "9090"},
		Database:   store.DefaultConfig(),
		RateLimit:  RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute},
		Identity:   IdentityConfig{IssuerURL: "https://issuer", ClientID: "tenantguard"},
		Assignment: AssignmentConfig{MaxAttempts: 3},
		Audit:      AuditConfig{WriteTimeout: time.Second},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "invalid database driver"},
		{"no database url", func(c *Config) { c.Database.URL = "" }, "database URL is required"},
		{"no identity", func(c *Config) { c.Identity = IdentityConfig{} }, "OIDC issuer URL"},
		{"static tokens only", func(c *Config) { c.Identity = IdentityConfig{StaticTokens: "a=b@c"} }, ""},
		{"attempts too low", func(c *Config) { c.Assignment.MaxAttempts = 0 }, "between 1 and 5"},
		{"attempts too high", func(c *Config) { c.Assignment.MaxAttempts = 6 }, "between 1 and 5"},
		{"redis without window", func(c *Config) {
			c.Redis.URL = "redis://localhost"
			c.RateLimit.Window = 0
		}, "rate limit window"},
		{"no audit timeout", func(c *Config) { c.Audit.WriteTimeout = 0 }, "audit write timeout"},
		{"archive key without secret", func(c *Config) {
			c.Archive = ArchiveConfig{S3Bucket: "audit", S3Region: "us-east-1", S3AccessKey: "minio"}
		}, "set together"},
		{"archive without region", func(c *Config) { c.Archive = ArchiveConfig{S3Bucket: "audit"} }, "region is required"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "tenantguard"
		}, "endpoint is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOperatorConfig(t *testing.T) {
	t.Setenv("TENANTGUARD_DB_DRIVER", "sqlite3")
	t.Setenv("TENANTGUARD_DB_URL", "file:ops.db")
	t.Setenv("TENANTGUARD_ARCHIVE_S3_BUCKET", "audit-archive")
	t.Setenv("TENANTGUARD_ARCHIVE_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("TENANTGUARD_ARCHIVE_S3_USE_PATH_STYLE", "true")

	cfg, err := LoadOperatorConfig()
	if err != nil {
		t.Fatalf("LoadOperatorConfig() error = %v", err)
	}
	if !cfg.Archive.Enabled() || !cfg.Archive.S3UsePathStyle || cfg.Archive.S3Region != "us-east-1" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if cfg.Archive.Prefix != "tenantguard" {
		t.Errorf("prefix = %q, want tenantguard", cfg.Archive.Prefix)
	}
	if cfg.Audit.WriteTimeout != 5*time.Second {
		t.Errorf("audit write timeout = %v, want 5s", cfg.Audit.WriteTimeout)
	}

	t.Setenv("TENANTGUARD_DB_DRIVER", "oracle")
	if _, err := LoadOperatorConfig(); err == nil || !strings.Contains(err.Error(), "invalid database driver") {
		t.Fatalf("LoadOperatorConfig() error = %v, want invalid driver", err)
	}
}
