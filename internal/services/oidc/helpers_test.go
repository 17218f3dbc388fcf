package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const testIssuer = "https://clerk.cloudshare.test"

// signingKey is an RSA key pair published under a key ID
type signingKey struct {
	kid  string
	raw  *rsa.PrivateKey
	priv jwk.Key
	pub  jwk.Key
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	priv, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("failed to wrap RSA key: %v", err)
	}
	if err := priv.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("failed to set kid: %v", err)
	}
	if err := priv.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("failed to set alg: %v", err)
	}
	pub, err := priv.PublicKey()
	if err != nil {
		t.Fatalf("failed to derive public key: %v", err)
	}

	return signingKey{kid: kid, raw: raw, priv: priv, pub: pub}
}

// sign signs tok with the key, carrying the key ID in the protected header
func (k signingKey) sign(t *testing.T, tok jwt.Token) string {
	t.Helper()

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, k.kid); err != nil {
		t.Fatalf("failed to set kid header: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, k.priv, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return string(signed)
}

// signWithoutKeyID signs tok with the raw key, so no kid header is emitted
func (k signingKey) signWithoutKeyID(t *testing.T, tok jwt.Token) string {
	t.Helper()

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, k.raw))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return string(signed)
}

func newKeySet(t *testing.T, keys ...signingKey) jwk.Set {
	t.Helper()

	set := jwk.NewSet()
	for _, k := range keys {
		if err := set.AddKey(k.pub); err != nil {
			t.Fatalf("failed to add key %s: %v", k.kid, err)
		}
	}
	return set
}

type tokenOption func(*jwt.Builder)

func withIssuer(iss string) tokenOption {
	return func(b *jwt.Builder) { b.Issuer(iss) }
}

func withSubject(sub string) tokenOption {
	return func(b *jwt.Builder) { b.Subject(sub) }
}

func withExpiry(exp time.Time) tokenOption {
	return func(b *jwt.Builder) { b.Expiration(exp) }
}

func newToken(t *testing.T, now time.Time, opts ...tokenOption) jwt.Token {
	t.Helper()

	b := jwt.NewBuilder().
		Issuer(testIssuer).
		Subject("user_2abc").
		IssuedAt(now).
		Expiration(now.Add(5*time.Minute)).
		Claim("sid", "sess_123")
	for _, opt := range opts {
		opt(b)
	}
	tok, err := b.Build()
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	return tok
}

// stubFetcher serves a replaceable key set and counts fetches
type stubFetcher struct {
	mu    sync.Mutex
	set   jwk.Set
	err   error
	calls atomic.Int64
	delay time.Duration
}

func (f *stubFetcher) FetchKeySet(ctx context.Context) (jwk.Set, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.set == nil {
		return nil, errors.New("no key set configured")
	}
	return f.set, nil
}

func (f *stubFetcher) publish(set jwk.Set) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = set
	f.err = nil
}

func (f *stubFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}
