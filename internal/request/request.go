package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloudshare/cloudshare-api/internal/models"
)

type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalContextKey returns the context key used for the principal. Exposed for tests that inject non-principal values.
func PrincipalContextKey() contextKey { return principalContextKey }

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext returns the principal from the context, or nil if the request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalContextKey).(*models.Principal)
	return p
}

// Principal returns the principal attached to the request, or nil.
func Principal(r *http.Request) *models.Principal {
	return PrincipalFromContext(r.Context())
}
