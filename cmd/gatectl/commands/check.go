package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudshare/cloudshare-api/internal/services/oidc"
)

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Test the identity provider configuration",
		Long:  "Check that the issuer's discovery document and key set are reachable and usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Issuer: %s\n", cfg.Auth.Issuer)

			url := cfg.Auth.JWKSURL
			if url == "" {
				fmt.Fprintln(out, "\nDiscovering JWKS URL...")
				url, err = oidc.DiscoverJWKSURL(ctx, cfg.Auth.Issuer, cfg.Auth.FetchTimeout)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "✓ Discovery document is valid")
			}

			fmt.Fprintf(out, "\nTesting JWKS endpoint: %s\n", url)
			resolver := oidc.NewKeyResolver(oidc.NewHTTPKeySetFetcher(url, cfg.Auth.FetchTimeout))
			if err := resolver.Refresh(ctx); err != nil {
				return err
			}
			if len(resolver.KeyIDs()) == 0 {
				return fmt.Errorf("JWKS endpoint published no keys with a key ID")
			}
			fmt.Fprintf(out, "✓ JWKS endpoint is accessible (%d key(s))\n", len(resolver.KeyIDs()))

			fmt.Fprintln(out, "\n✓ Provider configuration test passed")
			return nil
		},
	}
}
