package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	logpkg "github.com/cloudshare/cloudshare-api/internal/logger"
	"github.com/cloudshare/cloudshare-api/internal/request"
	"github.com/cloudshare/cloudshare-api/internal/services/oidc"
)

// Auth runs every request through the gate. Rejected requests get a 403 JSON body
// carrying the rejection reason; accepted requests continue with the principal, if
// any, attached to their context.
func Auth(gate *oidc.Gate, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := gate.Evaluate(r.Context(), oidc.RequestInfoFrom(r))

			switch result.Outcome {
			case oidc.OutcomeRejected:
				rej := result.Rejection
				logger.Info("auth_rejected",
					zap.String("kind", string(rej.Kind)),
					zap.String("stage", result.Stage),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("cause", logpkg.SanitizeError(rej.Err)),
				)
				respondRejection(w, rej, logger)
				return
			case oidc.OutcomeAuthenticated:
				if result.Principal.Development {
					logger.Debug("auth_local_trust",
						zap.String("path", logpkg.SanitizePath(r.URL.Path)),
						zap.String("host", logpkg.SanitizeHeader(r.Host)),
					)
				}
				r = r.WithContext(request.WithPrincipal(r.Context(), result.Principal))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthority refuses requests whose principal lacks authority. Use behind Auth.
func RequireAuthority(authority string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !request.Principal(r).HasAuthority(authority) {
				respondError(w, http.StatusForbidden, "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rejectionResponse is the body written for a gate rejection
type rejectionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func respondRejection(w http.ResponseWriter, rej *oidc.Rejection, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rej.StatusCode())

	body := rejectionResponse{Success: false, Error: rej.Reason, Code: string(rej.Kind)}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed_to_encode_rejection", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success": false,
		"error":   message,
	}

	_ = json.NewEncoder(w).Encode(response)
}
