package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/cloudshare/cloudshare-api/internal/handlers"
	"github.com/cloudshare/cloudshare-api/internal/middleware"
	"github.com/cloudshare/cloudshare-api/internal/models"
	"github.com/cloudshare/cloudshare-api/internal/services/oidc"
	"github.com/cloudshare/cloudshare-api/internal/telemetry"
)

// routerDeps is everything newRouter wires together
type routerDeps struct {
	logger         *zap.Logger
	gate           *oidc.Gate
	health         *handlers.HealthChecker
	auth           *handlers.AuthHandler
	rateLimit      func(http.Handler) http.Handler
	frontendURL    string
	enableHSTS     bool
	tracing        bool
	requestTimeout time.Duration
}

// newRouter builds the HTTP router. Every matched route passes through the gate;
// /health*, /public and the other exempt markers pass anonymously.
func newRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()

	// Outermost first
	if d.tracing {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	r.Use(middleware.Logging(d.logger))
	r.Use(middleware.SecurityHeaders(d.enableHSTS))
	r.Use(middleware.CORSFromEnv(d.frontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.Timeout(d.requestTimeout))
	r.Use(middleware.ErrorHandler(d.logger))
	r.Use(middleware.Audit(d.logger))
	if d.rateLimit != nil {
		r.Use(d.rateLimit)
	}
	r.Use(middleware.Auth(d.gate, d.logger))

	r.HandleFunc("/health", d.health.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", d.health.HealthCheck).Methods(http.MethodGet)

	openAPI := handlers.NewOpenAPIHandler()
	public := r.PathPrefix("/public").Subrouter()
	public.HandleFunc("/version", handlers.GetVersion).Methods(http.MethodGet)
	public.HandleFunc("/auth/config", d.auth.GetAuthConfig).Methods(http.MethodGet)
	public.HandleFunc("/openapi.yaml", openAPI.ServeYAML).Methods(http.MethodGet)
	public.HandleFunc("/openapi.json", openAPI.ServeJSON).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	authRouter := apiRouter.PathPrefix("/auth").Subrouter()
	authRouter.Use(middleware.RequireAuthority(models.AuthorityAdmin))
	d.auth.RegisterRoutes(authRouter)

	// Catch-all OPTIONS so preflights for any path reach the CORS middleware
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
