package middleware

import (
	"context"

	"github.com/cloudshare/cloudshare-api/internal/models"
	"github.com/cloudshare/cloudshare-api/internal/request"
)

// SetPrincipalInContext is a helper for handler tests in other packages that need an
// authenticated request without running the gate
func SetPrincipalInContext(ctx context.Context, principal *models.Principal) context.Context {
	return request.WithPrincipal(ctx, principal)
}
