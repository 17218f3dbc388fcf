package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/cloudshare/cloudshare-api/internal/handlers"
	"github.com/cloudshare/cloudshare-api/internal/services/oidc"
)

const testIssuer = "https://clerk.cloudshare.test"

type testServer struct {
	router  http.Handler
	signKey jwk.Key
}

func newTestServer(t *testing.T, localTrust bool) *testServer {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	priv, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("failed to wrap RSA key: %v", err)
	}
	_ = priv.Set(jwk.KeyIDKey, "ins_1")
	_ = priv.Set(jwk.AlgorithmKey, jwa.RS256)
	pub, err := priv.PublicKey()
	if err != nil {
		t.Fatalf("failed to derive public key: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("failed to build key set: %v", err)
	}

	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(jwksServer.Close)

	resolver := oidc.NewKeyResolver(oidc.NewHTTPKeySetFetcher(jwksServer.URL, time.Second))
	verifier := oidc.NewVerifier(resolver, oidc.VerifierConfig{Issuer: testIssuer})
	gate := oidc.NewDefaultGate(verifier, oidc.GateConfig{LocalTrust: localTrust})

	router := newRouter(routerDeps{
		logger: zap.NewNop(),
		gate:   gate,
		health: handlers.NewHealthChecker(resolver, nil),
		auth: handlers.NewAuthHandler(handlers.AuthInfo{
			Issuer:            testIssuer,
			JWKSURL:           jwksServer.URL,
			AllowedAlgorithms: []string{"RS256"},
		}),
		frontendURL:    "https://app.cloudshare.example",
		requestTimeout: 5 * time.Second,
	})

	return &testServer{router: router, signKey: priv}
}

func (s *testServer) token(t *testing.T, sub string, exp time.Time) string {
	t.Helper()

	tok, err := jwt.NewBuilder().
		Issuer(testIssuer).
		Subject(sub).
		IssuedAt(time.Now()).
		Expiration(exp).
		Build()
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	hdrs := jws.NewHeaders()
	_ = hdrs.Set(jws.KeyIDKey, "ins_1")
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, s.signKey, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return string(signed)
}

func (s *testServer) do(method, path, host string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Host = host
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, false)
	valid := srv.token(t, "user_2abc", time.Now().Add(5*time.Minute))
	expired := srv.token(t, "user_2abc", time.Now().Add(-10*time.Minute))

	tests := []struct {
		name       string
		method     string
		path       string
		headers    map[string]string
		wantStatus int
		wantError  string
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "extended health checks keys", method: http.MethodGet, path: "/healthz?mode=extended", wantStatus: http.StatusOK},
		{name: "version is public", method: http.MethodGet, path: "/public/version", wantStatus: http.StatusOK},
		{name: "auth config is public", method: http.MethodGet, path: "/public/auth/config", wantStatus: http.StatusOK},
		{name: "openapi json is public", method: http.MethodGet, path: "/public/openapi.json", wantStatus: http.StatusOK},
		{
			name:       "me without token",
			method:     http.MethodGet,
			path:       "/api/v1/auth/me",
			wantStatus: http.StatusForbidden,
			wantError:  "Authorization header missing/invalid",
		},
		{
			name:       "me with valid token",
			method:     http.MethodGet,
			path:       "/api/v1/auth/me",
			headers:    map[string]string{"Authorization": "Bearer " + valid},
			wantStatus: http.StatusOK,
		},
		{
			name:       "me with expired token",
			method:     http.MethodGet,
			path:       "/api/v1/auth/me",
			headers:    map[string]string{"Authorization": "Bearer " + expired},
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "preflight",
			method: http.MethodOptions,
			path:   "/api/v1/auth/me",
			headers: map[string]string{
				"Origin":                        "https://app.cloudshare.example",
				"Access-Control-Request-Method": http.MethodGet,
			},
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := srv.do(tt.method, tt.path, "api.cloudshare.example", tt.headers)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d (body %s)", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantError != "" {
				var body map[string]any
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if body["error"] != tt.wantError {
					t.Errorf("Expected error %q, got %v", tt.wantError, body["error"])
				}
			}
		})
	}
}

func TestRouter_MeReturnsPrincipal(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, false)
	w := srv.do(http.MethodGet, "/api/v1/auth/me", "api.cloudshare.example",
		map[string]string{"Authorization": "Bearer " + srv.token(t, "user_2abc", time.Now().Add(time.Minute))})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body struct {
		Data handlers.MeResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Data.Subject != "user_2abc" {
		t.Errorf("Expected subject 'user_2abc', got %q", body.Data.Subject)
	}
	if body.Data.Issuer != testIssuer {
		t.Errorf("Expected issuer %q, got %q", testIssuer, body.Data.Issuer)
	}
	if len(body.Data.Authorities) != 1 || body.Data.Authorities[0] != "ROLE_ADMIN" {
		t.Errorf("Expected [ROLE_ADMIN], got %v", body.Data.Authorities)
	}
	if body.Data.Development {
		t.Error("Expected a token principal, not the development one")
	}
}

func TestRouter_LocalTrust(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, true)
	w := srv.do(http.MethodGet, "/api/v1/auth/me", "localhost:8080", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body struct {
		Data handlers.MeResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Data.Subject != "dev-user" || !body.Data.Development {
		t.Errorf("Expected development principal, got %+v", body.Data)
	}
}
