package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudshare/cloudshare-api/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	tracerName = "github.com/cloudshare/cloudshare-api/internal/services/oidc"

	// DefaultClockSkew is the tolerated difference between token timestamps and local time
	DefaultClockSkew = 60 * time.Second

	bearerPrefix = "Bearer "
)

// DefaultAllowedAlgorithms are the signing algorithms accepted when none are configured
var DefaultAllowedAlgorithms = []string{"RS256"}

// KeySource resolves a signing key by key ID
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (jwk.Key, error)
}

// VerifierConfig holds the token policy enforced by the Verifier
type VerifierConfig struct {
	Issuer            string
	ClockSkew         time.Duration
	AllowedAlgorithms []string
	// Now overrides the clock; defaults to time.Now
	Now func() time.Time
}

// Verifier verifies provider-issued bearer tokens
type Verifier struct {
	keys    KeySource
	issuer  string
	skew    time.Duration
	allowed map[string]struct{}
	now     func() time.Time
}

// NewVerifier creates a new JWT verifier
func NewVerifier(keys KeySource, cfg VerifierConfig) *Verifier {
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = DefaultClockSkew
	}
	algs := cfg.AllowedAlgorithms
	if len(algs) == 0 {
		algs = DefaultAllowedAlgorithms
	}
	allowed := make(map[string]struct{}, len(algs))
	for _, alg := range algs {
		if alg = strings.TrimSpace(alg); alg != "" && !strings.EqualFold(alg, "none") {
			allowed[alg] = struct{}{}
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Verifier{
		keys:    keys,
		issuer:  cfg.Issuer,
		skew:    skew,
		allowed: allowed,
		now:     now,
	}
}

// Verify checks the raw Authorization header value and returns the authenticated principal
func (v *Verifier) Verify(ctx context.Context, authorization string) (*models.Principal, *Rejection) {
	token, ok := bearerToken(authorization)
	if !ok {
		return nil, reject(RejectMissingHeader, reasonMissingHeader)
	}
	return v.VerifyToken(ctx, token)
}

// VerifyToken verifies a compact-serialized JWT and returns the authenticated principal
func (v *Verifier) VerifyToken(ctx context.Context, token string) (*models.Principal, *Rejection) {
	ctx, span := tracer().Start(ctx, "jwt.verify")
	defer span.End()

	segments := tokenSegments(token)
	if len(segments) < 3 {
		return nil, reject(RejectMalformedToken, reasonBadFormat)
	}

	header, err := decodeHeader(segments[0])
	if err != nil {
		return nil, invalidToken(RejectMalformedToken, err)
	}

	kid := header.KeyID()
	if kid == "" {
		return nil, reject(RejectMissingKeyID, reasonMissingKeyID)
	}

	key, err := v.keys.PublicKey(ctx, kid)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, invalidToken(RejectKeyNotFound, err)
		}
		return nil, invalidToken(RejectKeyResolutionFailed, err)
	}

	alg, err := v.algorithmFor(key, header)
	if err != nil {
		return nil, invalidToken(RejectInvalidToken, err)
	}

	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(alg, key),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	)
	if err != nil {
		return nil, invalidToken(classifyParseError(err), err)
	}

	claims := extractClaims(parsed)
	if claims.Sub == "" {
		return nil, invalidToken(RejectInvalidClaims, errors.New("token has no subject"))
	}

	return models.NewPrincipal(claims), nil
}

// algorithmFor picks the verification algorithm: the key's own alg when published,
// otherwise the token header's. Either way it must be on the allow list.
func (v *Verifier) algorithmFor(key jwk.Key, header jws.Headers) (jwa.SignatureAlgorithm, error) {
	alg := key.Algorithm().String()
	if alg == "" {
		alg = header.Algorithm().String()
	}
	if _, ok := v.allowed[alg]; !ok {
		return "", fmt.Errorf("signing algorithm %q is not allowed", alg)
	}
	return jwa.SignatureAlgorithm(alg), nil
}

func classifyParseError(err error) RejectionKind {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return RejectTokenExpired
	case errors.Is(err, jwt.ErrInvalidIssuer()):
		return RejectIssuerMismatch
	case errors.Is(err, jwt.ErrTokenNotYetValid()), errors.Is(err, jwt.ErrInvalidIssuedAt()):
		return RejectInvalidClaims
	default:
		return RejectInvalidToken
	}
}

func extractClaims(token jwt.Token) *models.Claims {
	claims := &models.Claims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Exp: token.Expiration(),
		Iat: token.IssuedAt(),
		Nbf: token.NotBefore(),
	}
	if azp, ok := token.Get("azp"); ok {
		if s, ok := azp.(string); ok {
			claims.Azp = s
		}
	}
	if sid, ok := token.Get("sid"); ok {
		if s, ok := sid.(string); ok {
			claims.Sid = s
		}
	}
	return claims
}

// tokenSegments splits a compact token on "." and drops trailing empty segments,
// so "h.p." counts as two segments.
func tokenSegments(token string) []string {
	segments := strings.Split(token, ".")
	for len(segments) > 0 && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	return segments
}

// decodeHeader decodes the protected header segment on its own; the payload is not
// touched until a key has been found.
func decodeHeader(segment string) (jws.Headers, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	header := jws.NewHeaders()
	if err := json.Unmarshal(raw, header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	return header, nil
}

// bearerToken extracts the token from a "Bearer <token>" header value
func bearerToken(authorization string) (string, bool) {
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return "", false
	}
	return authorization[len(bearerPrefix):], true
}
