package middleware

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/cloudshare/cloudshare-api/internal/request"
)

const (
	// DefaultRateLimit is used when no rate is configured (100 requests per minute)
	DefaultRateLimit = "100-M"

	rateLimitPrefix = "gate_ratelimit"
)

// RateLimit returns per-client-IP rate limiting middleware using ulule/limiter. Limits are
// shared through Redis when redisClient is set, otherwise kept in process memory.
// rate uses the limiter format, e.g. "100-M" or "5-S".
func RateLimit(redisClient *redis.Client, rate string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rate == "" {
		rate = DefaultRateLimit
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: rateLimitPrefix})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix})
	}

	instance := limiter.New(store, parsed)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(func(r *http.Request) string {
			return request.ClientIP(r)
		}),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate_limit_store_error", zap.Error(err))
			respondError(w, http.StatusServiceUnavailable, "Rate limiter unavailable")
		}),
	)
	return mw.Handler, nil
}
