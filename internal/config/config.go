package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudshare/cloudshare-api/internal/validation"
)

// ErrMissingIssuer is returned when no token issuer is configured
var ErrMissingIssuer = errors.New("CLERK_ISSUER is required")

// Config holds application configuration
type Config struct {
	ServerPort      string `yaml:"server_port" validate:"required,numeric"`
	FrontendURL     string `yaml:"frontend_url" validate:"omitempty,url"`
	EnableHSTS      bool   `yaml:"enable_hsts"`
	ServerDebugMode bool   `yaml:"server_debug_mode"`

	Auth AuthConfig `yaml:"auth"`

	RedisURL  string `yaml:"redis_url" validate:"omitempty,url"`
	RateLimit string `yaml:"rate_limit"`

	OTELEnabled  bool   `yaml:"otel_enabled"`
	OTELEndpoint string `yaml:"otel_endpoint"`
}

// AuthConfig holds the token gate settings
type AuthConfig struct {
	Issuer             string        `yaml:"issuer" validate:"required,url"`
	JWKSURL            string        `yaml:"jwks_url" validate:"omitempty,url"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	MinRefreshInterval time.Duration `yaml:"min_refresh_interval" validate:"gte=0"`
	ClockSkew          time.Duration `yaml:"clock_skew" validate:"gt=0"`
	AllowedAlgorithms  []string      `yaml:"allowed_algorithms" validate:"min=1,dive,jws_alg"`
	ExemptRoutes       []string      `yaml:"exempt_routes" validate:"dive,route_marker"`
	LocalTrust         bool          `yaml:"local_trust"`
}

// Load loads configuration from environment variables. When CONFIG_FILE names a YAML
// file, its values are applied first and environment variables override them.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		ServerPort:  "8080",
		FrontendURL: "http://localhost:3000",
		RedisURL:    "",
		RateLimit:   "100-M",
		Auth: AuthConfig{
			FetchTimeout:      10 * time.Second,
			ClockSkew:         60 * time.Second,
			AllowedAlgorithms: []string{"RS256"},
			ExemptRoutes:      []string{"/webhooks", "/public", "/download", "/health"},
		},
	}
}

// Validate checks the configuration for missing or malformed values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		return ErrMissingIssuer
	}
	if err := validation.Validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %s", validation.FormatErrors(err))
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.FrontendURL = getEnv("FRONTEND_URL", cfg.FrontendURL)
	cfg.EnableHSTS = getEnvBool("ENABLE_HSTS", cfg.EnableHSTS)
	cfg.ServerDebugMode = getEnvBool("SERVER_DEBUG_MODE", cfg.ServerDebugMode)

	cfg.Auth.Issuer = getEnv("CLERK_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.JWKSURL = getEnv("CLERK_JWKS_URL", cfg.Auth.JWKSURL)
	cfg.Auth.FetchTimeout = getEnvDuration("JWKS_FETCH_TIMEOUT", cfg.Auth.FetchTimeout)
	cfg.Auth.MinRefreshInterval = getEnvDuration("JWKS_MIN_REFRESH_INTERVAL", cfg.Auth.MinRefreshInterval)
	cfg.Auth.ClockSkew = getEnvDuration("AUTH_CLOCK_SKEW", cfg.Auth.ClockSkew)
	cfg.Auth.AllowedAlgorithms = getEnvList("AUTH_ALLOWED_ALGS", cfg.Auth.AllowedAlgorithms)
	cfg.Auth.ExemptRoutes = getEnvList("AUTH_EXEMPT_ROUTES", cfg.Auth.ExemptRoutes)
	cfg.Auth.LocalTrust = getEnvBool("AUTH_LOCAL_TRUST", cfg.Auth.LocalTrust)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RateLimit = getEnv("RATE_LIMIT", cfg.RateLimit)

	cfg.OTELEnabled = getEnvBool("OTEL_ENABLED", cfg.OTELEnabled)
	cfg.OTELEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELEndpoint)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs := getEnvInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
