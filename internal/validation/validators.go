package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lestrrat-go/jwx/v2/jwa"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("jws_alg", validateJWSAlgorithm); err != nil {
		panic(fmt.Sprintf("failed to register jws_alg validator: %v", err))
	}
	if err := Validate.RegisterValidation("route_marker", validateRouteMarker); err != nil {
		panic(fmt.Sprintf("failed to register route_marker validator: %v", err))
	}
}

// validateJWSAlgorithm accepts asymmetric JWS signature algorithms only. "none" and
// HMAC algorithms cannot verify provider tokens against a published key set.
func validateJWSAlgorithm(fl validator.FieldLevel) bool {
	return ValidateJWSAlgorithm(fl.Field().String()) == nil
}

// validateRouteMarker requires an exempt-route marker to be an absolute path fragment
func validateRouteMarker(fl validator.FieldLevel) bool {
	return ValidateRouteMarker(fl.Field().String()) == nil
}

// ValidateJWSAlgorithm validates a signing algorithm name from configuration
func ValidateJWSAlgorithm(value string) error {
	for _, alg := range jwa.SignatureAlgorithms() {
		if alg.String() != value {
			continue
		}
		switch alg {
		case jwa.NoSignature, jwa.HS256, jwa.HS384, jwa.HS512:
			return fmt.Errorf("signing algorithm %s cannot be used with a public key set", value)
		}
		return nil
	}
	return fmt.Errorf("unknown signing algorithm: %s", value)
}

// ValidateRouteMarker validates an exempt-route marker
func ValidateRouteMarker(value string) error {
	if !strings.HasPrefix(value, "/") || strings.TrimSpace(value) != value {
		return fmt.Errorf("invalid exempt route %q (must start with '/' and contain no surrounding spaces)", value)
	}
	return nil
}

// FormatErrors renders validator errors as one readable message
func FormatErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
