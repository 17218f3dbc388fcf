package middleware

import (
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a request including any JWKS refresh it triggers
const DefaultRequestTimeout = 30 * time.Second

const timeoutBody = `{"success":false,"error":"Request Timeout"}`

// Timeout cancels the request context after timeout and answers 503 with a JSON body
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
