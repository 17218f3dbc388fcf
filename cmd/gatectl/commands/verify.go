package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudshare/cloudshare-api/internal/services/oidc"
)

// errRejected makes the command exit non-zero after the rejection was printed
var errRejected = errors.New("token rejected")

// verifyResult is the JSON form of a verification
type verifyResult struct {
	Valid       bool     `json:"valid"`
	Subject     string   `json:"subject,omitempty"`
	Issuer      string   `json:"issuer,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	ExpiresAt   string   `json:"expires_at,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify [token|-]",
		Short: "Verify a bearer token",
		Long:  "Run a token through the same verification the server applies and print the principal or the rejection. Use - to read the token from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			resolver, _, err := newResolver(ctx, cfg)
			if err != nil {
				return err
			}
			verifier := oidc.NewVerifier(resolver, oidc.VerifierConfig{
				Issuer:            cfg.Auth.Issuer,
				ClockSkew:         cfg.Auth.ClockSkew,
				AllowedAlgorithms: cfg.Auth.AllowedAlgorithms,
			})

			var res verifyResult
			principal, rejection := verifier.VerifyToken(ctx, token)
			if rejection != nil {
				res = verifyResult{Kind: string(rejection.Kind), Reason: rejection.Reason}
			} else {
				res = verifyResult{
					Valid:       true,
					Subject:     principal.Subject,
					Issuer:      principal.Issuer,
					SessionID:   principal.SessionID,
					Authorities: principal.Authorities,
				}
				if !principal.ExpiresAt.IsZero() {
					res.ExpiresAt = principal.ExpiresAt.UTC().Format(time.RFC3339)
				}
			}

			if err := printVerifyResult(cmd.OutOrStdout(), res, asJSON); err != nil {
				return err
			}
			if !res.Valid {
				return errRejected
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func readToken(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return strings.TrimPrefix(strings.TrimSpace(arg), "Bearer "), nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	token := strings.TrimPrefix(strings.TrimSpace(string(data)), "Bearer ")
	if token == "" {
		return "", errors.New("no token on stdin")
	}
	return token, nil
}

func printVerifyResult(out io.Writer, res verifyResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if !res.Valid {
		fmt.Fprintf(out, "✗ Rejected (%s): %s\n", res.Kind, res.Reason)
		return nil
	}
	fmt.Fprintln(out, "✓ Token is valid")
	fmt.Fprintf(out, "Subject:     %s\n", res.Subject)
	fmt.Fprintf(out, "Issuer:      %s\n", res.Issuer)
	if res.SessionID != "" {
		fmt.Fprintf(out, "Session:     %s\n", res.SessionID)
	}
	fmt.Fprintf(out, "Authorities: %s\n", strings.Join(res.Authorities, ", "))
	if res.ExpiresAt != "" {
		fmt.Fprintf(out, "Expires:     %s\n", res.ExpiresAt)
	}
	return nil
}
