package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// localOrigins are always allowed so a frontend on any local port can reach the API
var localOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
	"http://[::1]:*",
}

// CORS creates CORS middleware. Preflight requests are answered here; browsers may
// send credentials and read Content-Disposition for downloads.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(CORSOptions(allowedOrigins))
	return c.Handler
}

// CORSOptions builds the rs/cors options for the given origins plus the local ones
func CORSOptions(allowedOrigins []string) cors.Options {
	origins := append([]string{}, localOrigins...)
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" && !contains(origins, o) {
			origins = append(origins, o)
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		MaxAge:           3600,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition"},
	}
}

// CORSFromEnv creates CORS middleware from FRONTEND_URL (comma-separated origins)
func CORSFromEnv(frontendURL string) func(http.Handler) http.Handler {
	return CORS(strings.Split(frontendURL, ","))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
