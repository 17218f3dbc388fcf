package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// allConfigEnvVars lists every variable Load reads so each case starts clean
var allConfigEnvVars = []string{
	"CONFIG_FILE",
	"SERVER_PORT",
	"FRONTEND_URL",
	"ENABLE_HSTS",
	"SERVER_DEBUG_MODE",
	"CLERK_ISSUER",
	"CLERK_JWKS_URL",
	"JWKS_FETCH_TIMEOUT",
	"JWKS_MIN_REFRESH_INTERVAL",
	"AUTH_CLOCK_SKEW",
	"AUTH_ALLOWED_ALGS",
	"AUTH_EXEMPT_ROUTES",
	"AUTH_LOCAL_TRUST",
	"REDIS_URL",
	"RATE_LIMIT",
	"OTEL_ENABLED",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

// setEnv clears all config variables and applies vars for the duration of the test.
// t.Setenv rules out t.Parallel for these tests.
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, key := range allConfigEnvVars {
		t.Setenv(key, "")
	}
	for key, value := range vars {
		t.Setenv(key, value)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectError bool
		validate    func(*testing.T, *Config)
	}{
		{
			name: "issuer only uses defaults",
			envVars: map[string]string{
				"CLERK_ISSUER": "https://clerk.example.com",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.ServerPort != "8080" {
					t.Errorf("Expected default ServerPort to be '8080', got '%s'", cfg.ServerPort)
				}
				if cfg.FrontendURL != "http://localhost:3000" {
					t.Errorf("Expected default FrontendURL to be 'http://localhost:3000', got '%s'", cfg.FrontendURL)
				}
				if cfg.Auth.ClockSkew != 60*time.Second {
					t.Errorf("Expected default ClockSkew 60s, got %v", cfg.Auth.ClockSkew)
				}
				if !reflect.DeepEqual(cfg.Auth.AllowedAlgorithms, []string{"RS256"}) {
					t.Errorf("Expected default algorithms [RS256], got %v", cfg.Auth.AllowedAlgorithms)
				}
				if len(cfg.Auth.ExemptRoutes) != 4 {
					t.Errorf("Expected 4 default exempt routes, got %v", cfg.Auth.ExemptRoutes)
				}
				if cfg.Auth.LocalTrust {
					t.Error("Expected local trust to be disabled by default")
				}
				if cfg.Auth.JWKSURL != "" {
					t.Errorf("Expected empty JWKSURL, got %q", cfg.Auth.JWKSURL)
				}
			},
		},
		{
			name:        "missing CLERK_ISSUER",
			envVars:     map[string]string{"SERVER_PORT": "9090"},
			expectError: true,
		},
		{
			name: "explicit values",
			envVars: map[string]string{
				"CLERK_ISSUER":              "https://clerk.example.com/",
				"CLERK_JWKS_URL":            "https://clerk.example.com/.well-known/jwks.json",
				"SERVER_PORT":               "9090",
				"JWKS_FETCH_TIMEOUT":        "3s",
				"JWKS_MIN_REFRESH_INTERVAL": "30",
				"AUTH_CLOCK_SKEW":           "15s",
				"AUTH_ALLOWED_ALGS":         "RS256, ES256",
				"AUTH_EXEMPT_ROUTES":        "/webhooks,,/status",
				"AUTH_LOCAL_TRUST":          "true",
				"ENABLE_HSTS":               "1",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Auth.Issuer != "https://clerk.example.com/" {
					t.Errorf("Expected issuer kept verbatim, got %q", cfg.Auth.Issuer)
				}
				if cfg.ServerPort != "9090" {
					t.Errorf("Expected ServerPort to be '9090', got '%s'", cfg.ServerPort)
				}
				if cfg.Auth.FetchTimeout != 3*time.Second {
					t.Errorf("Expected FetchTimeout 3s, got %v", cfg.Auth.FetchTimeout)
				}
				if cfg.Auth.MinRefreshInterval != 30*time.Second {
					t.Errorf("Expected MinRefreshInterval 30s, got %v", cfg.Auth.MinRefreshInterval)
				}
				if cfg.Auth.ClockSkew != 15*time.Second {
					t.Errorf("Expected ClockSkew 15s, got %v", cfg.Auth.ClockSkew)
				}
				if !reflect.DeepEqual(cfg.Auth.AllowedAlgorithms, []string{"RS256", "ES256"}) {
					t.Errorf("Unexpected algorithms %v", cfg.Auth.AllowedAlgorithms)
				}
				if !reflect.DeepEqual(cfg.Auth.ExemptRoutes, []string{"/webhooks", "/status"}) {
					t.Errorf("Unexpected exempt routes %v", cfg.Auth.ExemptRoutes)
				}
				if !cfg.Auth.LocalTrust || !cfg.EnableHSTS {
					t.Error("Expected LocalTrust and EnableHSTS to be enabled")
				}
			},
		},
		{
			name: "symmetric algorithm rejected",
			envVars: map[string]string{
				"CLERK_ISSUER":      "https://clerk.example.com",
				"AUTH_ALLOWED_ALGS": "HS256",
			},
			expectError: true,
		},
		{
			name: "relative exempt route rejected",
			envVars: map[string]string{
				"CLERK_ISSUER":       "https://clerk.example.com",
				"AUTH_EXEMPT_ROUTES": "health",
			},
			expectError: true,
		},
		{
			name: "zero clock skew rejected",
			envVars: map[string]string{
				"CLERK_ISSUER":    "https://clerk.example.com",
				"AUTH_CLOCK_SKEW": "0s",
			},
			expectError: true,
		},
		{
			name: "issuer must be a URL",
			envVars: map[string]string{
				"CLERK_ISSUER": "clerk",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.envVars)

			cfg, err := Load()

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoad_MissingIssuerError(t *testing.T) {
	setEnv(t, nil)

	_, err := Load()
	if !errors.Is(err, ErrMissingIssuer) {
		t.Errorf("Expected ErrMissingIssuer, got %v", err)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	content := `server_port: "7070"
auth:
  issuer: https://file.example.com
  clock_skew: 30s
  exempt_routes: ["/status"]
  local_trust: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	setEnv(t, map[string]string{
		"CONFIG_FILE": path,
		"SERVER_PORT": "9091",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.ServerPort != "9091" {
		t.Errorf("Expected env to override file port, got %q", cfg.ServerPort)
	}
	if cfg.Auth.Issuer != "https://file.example.com" {
		t.Errorf("Expected issuer from file, got %q", cfg.Auth.Issuer)
	}
	if cfg.Auth.ClockSkew != 30*time.Second {
		t.Errorf("Expected ClockSkew 30s from file, got %v", cfg.Auth.ClockSkew)
	}
	if !reflect.DeepEqual(cfg.Auth.ExemptRoutes, []string{"/status"}) {
		t.Errorf("Expected exempt routes from file, got %v", cfg.Auth.ExemptRoutes)
	}
	if !cfg.Auth.LocalTrust {
		t.Error("Expected local trust from file")
	}
	if !reflect.DeepEqual(cfg.Auth.AllowedAlgorithms, []string{"RS256"}) {
		t.Errorf("Expected default algorithms to survive, got %v", cfg.Auth.AllowedAlgorithms)
	}
}

func TestLoad_ConfigFileErrors(t *testing.T) {
	badYAML := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(badYAML, []byte("auth: [unterminated"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	for _, path := range []string{filepath.Join(t.TempDir(), "missing.yaml"), badYAML} {
		setEnv(t, map[string]string{
			"CONFIG_FILE":  path,
			"CLERK_ISSUER": "https://clerk.example.com",
		})
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "config file") {
			t.Errorf("Expected config file error for %s, got %v", path, err)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("GATE_TEST_DURATION", "45s")
	t.Setenv("GATE_TEST_SECONDS", "12")
	t.Setenv("GATE_TEST_BAD_DURATION", "soon")
	t.Setenv("GATE_TEST_LIST", " a , b ,,")
	t.Setenv("GATE_TEST_EMPTY_LIST", " , ")
	t.Setenv("GATE_TEST_BOOL", "yes")
	t.Setenv("GATE_TEST_INT", "nope")

	if got := getEnvDuration("GATE_TEST_DURATION", time.Second); got != 45*time.Second {
		t.Errorf("getEnvDuration() = %v, want 45s", got)
	}
	if got := getEnvDuration("GATE_TEST_SECONDS", time.Second); got != 12*time.Second {
		t.Errorf("getEnvDuration() = %v, want 12s", got)
	}
	if got := getEnvDuration("GATE_TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() = %v, want default", got)
	}
	if got := getEnvList("GATE_TEST_LIST", nil); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("getEnvList() = %v, want [a b]", got)
	}
	if got := getEnvList("GATE_TEST_EMPTY_LIST", []string{"x"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("getEnvList() = %v, want default", got)
	}
	if !getEnvBool("GATE_TEST_BOOL", false) {
		t.Error("getEnvBool() = false, want true")
	}
	if got := getEnvInt("GATE_TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt() = %d, want default 7", got)
	}
	if got := getEnv("GATE_TEST_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want default", got)
	}
}
