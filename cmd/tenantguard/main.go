package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantguard/pkg/admin"
	"github.com/platinummonkey/tenantguard/pkg/assignment"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/identity"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/orgs"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/store"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("tenantguard: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "tenantguard").
		WithField("version", version)
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers)
	})

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	logger.WithField("driver", db.Dialect).Info("database ready")

	cat, err := catalog.LoadFile(cfg.Catalog.File)
	if err != nil {
		return err
	}
	resolver := rbac.NewResolver(cat)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	metrics.RegisterDBStats(db.DB, "tenantguard")

	authn, cache, err := newAuthenticator(ctx, cfg.Identity)
	if err != nil {
		return err
	}
	metrics.RegisterCacheStats("identity", cache.Stats)

	diag, diagCloser, err := audit.NewDiagnosticLogger(cfg.Audit.DiagnosticFile, cfg.Audit.DiagnosticLevel)
	if err != nil {
		return err
	}
	shutdown.Register("audit-diagnostics", func(context.Context) error { return diagCloser.Close() })
	sink, err := audit.NewDBSink(db.DB)
	if err != nil {
		return err
	}
	recorder := audit.NewRecorder(sink, diag,
		audit.WithFailureCounter(metrics),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
	)

	members := orgs.NewSQLService(db.DB, resolver)
	guard := assignment.NewGuard(db.DB, assignment.Config{MaxAttempts: cfg.Assignment.MaxAttempts})
	guard.SetObserver(metrics)
	service := admin.NewService(members, resolver, guard, recorder,
		admin.WithObserver(metrics),
		admin.WithDiagnostics(diag),
	)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, rate limiting fails open")
		}
	}

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(metrics, routeTemplate))
	admin.NewHandlers(service).RegisterRoutes(router)

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		middleware.NewAuthMiddleware(authn, members, true).Handler,
	}
	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			WindowDuration:    cfg.RateLimit.Window,
		})
		chain = append(chain, limiter.Handler)
	}
	handler := otelhttp.NewHandler(httputil.Chain(chain...)(router), "tenantguard")

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db.DB, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown.Register("health-server", healthServer.Shutdown)
	shutdown.Register("api-server", apiServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, logger.WithField("server", "api")) })
	g.Go(func() error { return serve(healthServer, logger.WithField("server", "health")) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return shutdown.Shutdown(context.Background())
	})
	return g.Wait()
}

func serve(srv *http.Server, logger *observability.Logger) error {
	logger.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

// newAuthenticator prefers static tokens, which exist for local runs, over
// OIDC discovery. Both are wrapped in the verification cache.
func newAuthenticator(ctx context.Context, cfg config.IdentityConfig) (identity.Authenticator, *identity.CachingAuthenticator, error) {
	var next identity.Authenticator
	if cfg.StaticTokens != "" {
		tokens, err := identity.ParseStaticTokens(cfg.StaticTokens)
		if err != nil {
			return nil, nil, err
		}
		next = identity.NewStaticAuthenticator(tokens)
	} else {
		oidcAuth, err := identity.NewOIDCAuthenticator(ctx, identity.OIDCConfig{
			IssuerURL:        cfg.IssuerURL,
			ClientID:         cfg.ClientID,
			SkipIssuerCheck:  cfg.SkipIssuerCheck,
			UserInfoFallback: cfg.UserInfoFallback,
		})
		if err != nil {
			return nil, nil, err
		}
		next = oidcAuth
	}
	cache := identity.NewCachingAuthenticator(next, identity.CacheConfig{Size: cfg.CacheSize, TTL: cfg.CacheTTL})
	return cache, cache, nil
}

// routeTemplate labels metrics by route so action names stay bounded
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
