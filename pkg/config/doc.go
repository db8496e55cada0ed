// Package config loads service configuration from TENANTGUARD_* environment
// variables with defaults, then validates it.
//
// Server:
//
//	TENANTGUARD_HOST="0.0.0.0"
//	TENANTGUARD_PORT="8080"
//	TENANTGUARD_HEALTH_PORT="9090"
//	TENANTGUARD_READ_TIMEOUT="15s"
//
// Database:
//
//	TENANTGUARD_DB_DRIVER="postgres"   # postgres or sqlite3
//	TENANTGUARD_DB_URL="postgres://localhost/tenantguard?sslmode=disable"
//	TENANTGUARD_DB_MAX_OPEN_CONNS="20"
//
// Identity:
//
//	TENANTGUARD_OIDC_ISSUER_URL="https://issuer.example.com"
//	TENANTGUARD_OIDC_CLIENT_ID="tenantguard"
//	TENANTGUARD_IDENTITY_CACHE_TTL="1m"
//	TENANTGUARD_STATIC_TOKENS="dev-token=admin@example.com"   # local only
//
// Rate limiting is enabled by TENANTGUARD_REDIS_URL. The role catalog is
// read from TENANTGUARD_CATALOG_FILE when set and built in otherwise.
// Audit write failures go to TENANTGUARD_AUDIT_DIAGNOSTIC_FILE or stderr.
package config
