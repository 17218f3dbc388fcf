package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	// ErrKeyNotFound is returned when a key ID is absent from the key set even after a refresh
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyResolutionFailed is returned when the key set could not be fetched or parsed
	ErrKeyResolutionFailed = errors.New("key resolution failed")
)

const (
	// DefaultFetchTimeout bounds a single JWKS fetch
	DefaultFetchTimeout = 10 * time.Second

	// maxJWKSBodySize caps the JWKS response body
	maxJWKSBodySize = 1 << 20
)

// KeySetFetcher retrieves the provider's published key set
type KeySetFetcher interface {
	FetchKeySet(ctx context.Context) (jwk.Set, error)
}

// HTTPKeySetFetcher fetches a JWKS document over HTTP
type HTTPKeySetFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPKeySetFetcher creates a fetcher for the given JWKS URL
func NewHTTPKeySetFetcher(jwksURL string, timeout time.Duration) *HTTPKeySetFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPKeySetFetcher{
		url:    jwksURL,
		client: &http.Client{Timeout: timeout},
	}
}

// URL returns the JWKS endpoint this fetcher reads from
func (f *HTTPKeySetFetcher) URL() string {
	return f.url
}

// FetchKeySet performs a GET against the JWKS endpoint and parses every key in it
func (f *HTTPKeySetFetcher) FetchKeySet(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	return keys, nil
}

// keySnapshot is an immutable view of the key set, indexed by key ID
type keySnapshot struct {
	keys       map[string]jwk.Key
	generation uint64
	fetchedAt  time.Time
}

func (s *keySnapshot) lookup(kid string) (jwk.Key, bool) {
	if s == nil {
		return nil, false
	}
	key, ok := s.keys[kid]
	return key, ok
}

// KeyResolver caches the provider's signing keys by key ID and refreshes the whole
// set when a lookup misses
type KeyResolver struct {
	fetcher            KeySetFetcher
	logger             *zap.Logger
	minRefreshInterval time.Duration
	now                func() time.Time

	current   atomic.Pointer[keySnapshot]
	refreshMu sync.Mutex
	refreshes atomic.Int64
	// lastAttempt is guarded by refreshMu
	lastAttempt time.Time
}

// ResolverOption configures a KeyResolver
type ResolverOption func(*KeyResolver)

// WithResolverLogger sets the logger used for refresh events
func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *KeyResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMinRefreshInterval suppresses miss-triggered fetches that happen within d of the
// previous fetch attempt, successful or not
func WithMinRefreshInterval(d time.Duration) ResolverOption {
	return func(r *KeyResolver) {
		r.minRefreshInterval = d
	}
}

// NewKeyResolver creates a resolver with an empty cache
func NewKeyResolver(fetcher KeySetFetcher, opts ...ResolverOption) *KeyResolver {
	r := &KeyResolver{
		fetcher: fetcher,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PublicKey returns the signing key for kid, refreshing the key set once on a miss
func (r *KeyResolver) PublicKey(ctx context.Context, kid string) (jwk.Key, error) {
	snap := r.current.Load()
	if key, ok := snap.lookup(kid); ok {
		return key, nil
	}

	var seen uint64
	if snap != nil {
		seen = snap.generation
	}

	snap, err := r.refreshAfter(ctx, seen)
	if err != nil {
		return nil, err
	}

	if key, ok := snap.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Refresh unconditionally fetches the key set and replaces the cache
func (r *KeyResolver) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	_, err := r.fetchLocked(ctx)
	return err
}

// EnsureKeys fetches the key set when nothing is cached. It is subject to the minimum
// refresh interval, unlike Refresh.
func (r *KeyResolver) EnsureKeys(ctx context.Context) error {
	snap := r.current.Load()
	if snap != nil && len(snap.keys) > 0 {
		return nil
	}
	var seen uint64
	if snap != nil {
		seen = snap.generation
	}
	_, err := r.refreshAfter(ctx, seen)
	return err
}

// KeyIDs returns the key IDs currently cached, sorted
func (r *KeyResolver) KeyIDs() []string {
	snap := r.current.Load()
	if snap == nil {
		return nil
	}
	ids := make([]string, 0, len(snap.keys))
	for kid := range snap.keys {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

// LastFetched returns when the cached key set was fetched, or the zero time if never
func (r *KeyResolver) LastFetched() time.Time {
	if snap := r.current.Load(); snap != nil {
		return snap.fetchedAt
	}
	return time.Time{}
}

// Refreshes returns how many key set fetches have completed successfully
func (r *KeyResolver) Refreshes() int64 {
	return r.refreshes.Load()
}

// refreshAfter fetches a new key set unless another caller already replaced the
// snapshot with generation seen while this caller was waiting
func (r *KeyResolver) refreshAfter(ctx context.Context, seen uint64) (*keySnapshot, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	snap := r.current.Load()
	if snap != nil && snap.generation != seen {
		return snap, nil
	}

	if r.minRefreshInterval > 0 && !r.lastAttempt.IsZero() {
		if since := r.now().Sub(r.lastAttempt); since < r.minRefreshInterval {
			r.logger.Debug("jwks_refresh_suppressed", zap.Duration("since_last_attempt", since))
			if snap == nil {
				return nil, fmt.Errorf("%w: refresh suppressed and no keys cached", ErrKeyResolutionFailed)
			}
			return snap, nil
		}
	}

	return r.fetchLocked(ctx)
}

func (r *KeyResolver) fetchLocked(ctx context.Context) (*keySnapshot, error) {
	ctx, span := tracer().Start(ctx, "jwks.refresh")
	defer span.End()

	r.lastAttempt = r.now()

	set, err := r.fetcher.FetchKeySet(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "jwks fetch failed")
		r.logger.Warn("jwks_refresh_failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrKeyResolutionFailed, err)
	}

	keys := indexKeySet(set)

	var generation uint64 = 1
	if prev := r.current.Load(); prev != nil {
		generation = prev.generation + 1
	}
	snap := &keySnapshot{
		keys:       keys,
		generation: generation,
		fetchedAt:  r.now(),
	}
	r.current.Store(snap)
	r.refreshes.Add(1)

	span.SetAttributes(attribute.Int("jwks.key_count", len(keys)))
	r.logger.Info("jwks_refreshed",
		zap.Int("key_count", len(keys)),
		zap.Uint64("generation", generation),
	)

	return snap, nil
}

// indexKeySet builds the kid index; keys without a kid are unreachable and skipped,
// and the first key published under a kid wins
func indexKeySet(set jwk.Set) map[string]jwk.Key {
	keys := make(map[string]jwk.Key, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid := key.KeyID()
		if kid == "" {
			continue
		}
		if _, exists := keys[kid]; exists {
			continue
		}
		keys[kid] = key
	}
	return keys
}
