package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	logpkg "github.com/cloudshare/cloudshare-api/internal/logger"
)

const healthCheckTimeout = 5 * time.Second

// KeyStatus reports on the cached provider key set
type KeyStatus interface {
	KeyIDs() []string
	EnsureKeys(ctx context.Context) error
}

// HealthChecker handles health check requests
type HealthChecker struct {
	keys  KeyStatus
	redis *redis.Client
}

// NewHealthChecker creates a new health checker. redisClient may be nil when rate
// limits are kept in memory.
func NewHealthChecker(keys KeyStatus, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{keys: keys, redis: redisClient}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles /health and /healthz. With ?mode=extended it also checks the
// provider key set and Redis, answering 503 when either is unhealthy.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		checks := map[string]string{
			"jwks": checkResult(h.checkKeys(ctx)),
		}
		if h.redis != nil {
			checks["redis"] = checkResult(h.checkRedis(ctx))
		}
		for _, v := range checks {
			if v != "healthy" {
				response.Status = "unhealthy"
				statusCode = http.StatusServiceUnavailable
			}
		}
		response.Checks = checks
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// checkKeys passes when keys are cached. When none are, it asks the resolver to fetch
// them, which the resolver throttles.
func (h *HealthChecker) checkKeys(ctx context.Context) error {
	if h.keys == nil {
		return errors.New("key resolver not configured")
	}
	if err := h.keys.EnsureKeys(ctx); err != nil {
		return err
	}
	if len(h.keys.KeyIDs()) == 0 {
		return errors.New("provider published no keys")
	}
	return nil
}

func (h *HealthChecker) checkRedis(ctx context.Context) error {
	return h.redis.Ping(ctx).Err()
}

func checkResult(err error) string {
	if err != nil {
		return "unhealthy: " + logpkg.SanitizeString(err.Error(), maxClientMessageLength)
	}
	return "healthy"
}
