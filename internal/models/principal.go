package models

import "time"

const (
	// AuthorityAdmin is the single authority granted to every authenticated principal
	AuthorityAdmin = "ROLE_ADMIN"

	// DevelopmentSubject is the subject of the principal synthesized for trusted local requests
	DevelopmentSubject = "dev-user"
)

// Principal is the authenticated identity attached to a request
type Principal struct {
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Authorities []string  `json:"authorities"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Development bool      `json:"development"`
}

// NewPrincipal builds the principal for a verified token
func NewPrincipal(claims *Claims) *Principal {
	return &Principal{
		Subject:     claims.Sub,
		Issuer:      claims.Iss,
		SessionID:   claims.Sid,
		Authorities: []string{AuthorityAdmin},
		ExpiresAt:   claims.Exp,
	}
}

// NewDevelopmentPrincipal builds the fixed principal used for trusted local requests
func NewDevelopmentPrincipal() *Principal {
	return &Principal{
		Subject:     DevelopmentSubject,
		Authorities: []string{AuthorityAdmin},
		Development: true,
	}
}

// HasAuthority reports whether the principal was granted the given authority
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}
