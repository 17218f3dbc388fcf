package oidc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverJWKSURL reads the issuer's OpenID discovery document and returns its jwks_uri
func DiscoverJWKSURL(ctx context.Context, issuer string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx = gooidc.ClientContext(ctx, &http.Client{Timeout: timeout})

	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}

	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", fmt.Errorf("discovery document for %s has no jwks_uri", issuer)
	}

	return meta.JWKSURI, nil
}
