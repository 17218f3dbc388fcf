package oidc

import (
	"fmt"
	"net/http"
)

// RejectionKind classifies why a request was refused
type RejectionKind string

const (
	RejectMissingHeader       RejectionKind = "missing_header"
	RejectMalformedToken      RejectionKind = "malformed_token"
	RejectMissingKeyID        RejectionKind = "missing_kid"
	RejectKeyNotFound         RejectionKind = "key_not_found"
	RejectKeyResolutionFailed RejectionKind = "key_resolution_failed"
	RejectTokenExpired        RejectionKind = "token_expired"
	RejectIssuerMismatch      RejectionKind = "issuer_mismatch"
	RejectInvalidClaims       RejectionKind = "invalid_claims"
	RejectInvalidToken        RejectionKind = "invalid_token"
)

const (
	reasonMissingHeader = "Authorization header missing/invalid"
	reasonBadFormat     = "Invalid JWT token format"
	reasonMissingKeyID  = "Token header is missing kid"
	reasonInvalidPrefix = "Invalid JWT token: "
)

// Rejection is the refusal of a request by the gate. Every rejection is reported
// to the client as 403 with Reason as the message.
type Rejection struct {
	Kind   RejectionKind
	Reason string
	Err    error
}

func (r *Rejection) Error() string {
	return r.Reason
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// StatusCode returns the HTTP status used to report the rejection
func (r *Rejection) StatusCode() int {
	return http.StatusForbidden
}

func reject(kind RejectionKind, reason string) *Rejection {
	return &Rejection{Kind: kind, Reason: reason}
}

// invalidToken wraps a verification failure into the catch-all rejection, keeping the cause
func invalidToken(kind RejectionKind, cause error) *Rejection {
	return &Rejection{
		Kind:   kind,
		Reason: fmt.Sprintf("%s%v", reasonInvalidPrefix, cause),
		Err:    cause,
	}
}
