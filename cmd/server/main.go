package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cloudshare/cloudshare-api/internal/config"
	"github.com/cloudshare/cloudshare-api/internal/handlers"
	"github.com/cloudshare/cloudshare-api/internal/logger"
	"github.com/cloudshare/cloudshare-api/internal/middleware"
	"github.com/cloudshare/cloudshare-api/internal/models"
	"github.com/cloudshare/cloudshare-api/internal/services/oidc"
	"github.com/cloudshare/cloudshare-api/internal/telemetry"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	devFlag := flag.Bool("dev", false, "Use human-readable console logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, *devFlag)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.String("version", handlers.Version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("issuer", cfg.Auth.Issuer),
		zap.Strings("exempt_routes", cfg.Auth.ExemptRoutes),
		zap.Bool("local_trust", cfg.Auth.LocalTrust),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)
	if cfg.Auth.LocalTrust {
		zapLogger.Warn("local_trust_enabled",
			zap.String("subject", models.DevelopmentSubject),
		)
	}

	tracing := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(context.Background(), telemetry.ServiceName, handlers.Version, cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracing = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	jwksURL := cfg.Auth.JWKSURL
	if jwksURL == "" {
		jwksURL, err = oidc.DiscoverJWKSURL(context.Background(), cfg.Auth.Issuer, cfg.Auth.FetchTimeout)
		if err != nil {
			zapLogger.Fatal("failed_to_discover_jwks_url",
				zap.String("issuer", cfg.Auth.Issuer),
				zap.Error(err),
			)
		}
		zapLogger.Info("discovered_jwks_url", zap.String("jwks_url", jwksURL))
	}

	resolver := oidc.NewKeyResolver(
		oidc.NewHTTPKeySetFetcher(jwksURL, cfg.Auth.FetchTimeout),
		oidc.WithResolverLogger(zapLogger),
		oidc.WithMinRefreshInterval(cfg.Auth.MinRefreshInterval),
	)
	// Warm the cache; the first request retries if this fails
	warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.Auth.FetchTimeout)
	if err := resolver.Refresh(warmCtx); err != nil {
		zapLogger.Warn("jwks_warmup_failed", zap.String("jwks_url", jwksURL), zap.Error(err))
	}
	warmCancel()

	verifier := oidc.NewVerifier(resolver, oidc.VerifierConfig{
		Issuer:            cfg.Auth.Issuer,
		ClockSkew:         cfg.Auth.ClockSkew,
		AllowedAlgorithms: cfg.Auth.AllowedAlgorithms,
	})
	gate := oidc.NewDefaultGate(verifier, oidc.GateConfig{
		ExemptRoutes: cfg.Auth.ExemptRoutes,
		LocalTrust:   cfg.Auth.LocalTrust,
	})

	redisClient := connectRedis(cfg.RedisURL, zapLogger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
	}

	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimit, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	r := newRouter(routerDeps{
		logger: zapLogger,
		gate:   gate,
		health: handlers.NewHealthChecker(resolver, redisClient),
		auth: handlers.NewAuthHandler(handlers.AuthInfo{
			Issuer:            cfg.Auth.Issuer,
			JWKSURL:           jwksURL,
			AllowedAlgorithms: cfg.Auth.AllowedAlgorithms,
		}),
		rateLimit:      rateLimitMW,
		frontendURL:    cfg.FrontendURL,
		enableHSTS:     cfg.EnableHSTS,
		tracing:        tracing,
		requestTimeout: middleware.DefaultRequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectRedis returns a client for redisURL, or nil when Redis is not configured or
// unreachable. Without Redis, rate limits are kept per process.
func connectRedis(redisURL string, logger *zap.Logger) *redis.Client {
	if redisURL == "" {
		logger.Info("redis_not_configured_using_memory_rate_limits")
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid_redis_url", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("failed_to_connect_to_redis_using_memory_rate_limits", zap.Error(err))
		_ = client.Close()
		return nil
	}
	logger.Info("connected_to_redis")
	return client
}
