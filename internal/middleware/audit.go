package middleware

import (
	"net/http"

	"go.uber.org/zap"

	logpkg "github.com/cloudshare/cloudshare-api/internal/logger"
	"github.com/cloudshare/cloudshare-api/internal/request"
)

// Audit logs security-related events: refused requests and rate limit violations
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			var event string
			switch wrapped.statusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				event = "security_event"
			case http.StatusTooManyRequests:
				event = "rate_limit_violation"
			default:
				return
			}
			logger.Warn(event,
				zap.Int("status_code", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("ip", logpkg.SanitizeHeader(request.ClientIP(r))),
				zap.String("origin", logpkg.SanitizeHeader(r.Header.Get("Origin"))),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}
