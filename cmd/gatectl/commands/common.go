package commands

import (
	"context"
	"fmt"

	"github.com/cloudshare/cloudshare-api/internal/config"
	"github.com/cloudshare/cloudshare-api/internal/services/oidc"
)

// loadConfig loads the service configuration the same way the server does
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// jwksURL returns the configured key set URL, discovering it from the issuer if unset
func jwksURL(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.Auth.JWKSURL != "" {
		return cfg.Auth.JWKSURL, nil
	}
	return oidc.DiscoverJWKSURL(ctx, cfg.Auth.Issuer, cfg.Auth.FetchTimeout)
}

// newResolver builds a key resolver for the configured provider
func newResolver(ctx context.Context, cfg *config.Config) (*oidc.KeyResolver, string, error) {
	url, err := jwksURL(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	return oidc.NewKeyResolver(oidc.NewHTTPKeySetFetcher(url, cfg.Auth.FetchTimeout)), url, nil
}
