package models

import "time"

// Claims represents the claims extracted from a verified provider token
type Claims struct {
	Sub string    `json:"sub"`           // Subject (user ID from provider)
	Iss string    `json:"iss"`           // Issuer
	Azp string    `json:"azp,omitempty"` // Authorized party (origin the token was minted for)
	Sid string    `json:"sid,omitempty"` // Provider session ID
	Exp time.Time `json:"exp"`
	Iat time.Time `json:"iat"`
	Nbf time.Time `json:"nbf"`
}
