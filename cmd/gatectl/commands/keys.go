package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewKeysCmd creates the keys command
func NewKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the provider's signing key IDs",
		Long:  "Fetch the provider's JWKS and list the key IDs tokens may be signed with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			resolver, url, err := newResolver(ctx, cfg)
			if err != nil {
				return err
			}
			if err := resolver.Refresh(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ids := resolver.KeyIDs()
			fmt.Fprintf(out, "JWKS: %s\n", url)
			if len(ids) == 0 {
				fmt.Fprintln(out, "No keys published.")
				return nil
			}
			fmt.Fprintf(out, "%d key(s):\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}
