package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cloudshare/cloudshare-api/internal/request"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	info AuthInfo
}

// AuthInfo is the public description of how the API authenticates callers
type AuthInfo struct {
	Issuer            string   `json:"issuer"`
	JWKSURL           string   `json:"jwks_url"`
	AllowedAlgorithms []string `json:"allowed_algorithms"`
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(info AuthInfo) *AuthHandler {
	return &AuthHandler{info: info}
}

// RegisterRoutes registers auth routes on the given router
// The router should already have the /api/v1/auth prefix
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods(http.MethodGet)
}

// MeResponse is the caller's identity as established by the gate
type MeResponse struct {
	Subject     string     `json:"subject"`
	Issuer      string     `json:"issuer,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	Authorities []string   `json:"authorities"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Development bool       `json:"development"`
}

// GetMe returns the authenticated principal
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := request.Principal(r)
	if p == nil {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "No authenticated principal")
		return
	}

	resp := MeResponse{
		Subject:     p.Subject,
		Issuer:      p.Issuer,
		SessionID:   p.SessionID,
		Authorities: p.Authorities,
		Development: p.Development,
	}
	if !p.ExpiresAt.IsZero() {
		exp := p.ExpiresAt.UTC()
		resp.ExpiresAt = &exp
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetAuthConfig returns the issuer and key set location so clients can discover how
// tokens are checked. Served on an exempt route.
func (h *AuthHandler) GetAuthConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.info)
}
