package auth

import (
	"context"

	"github.com/wolfeidau/idsync/internal/models"
)

// Principal represents the authenticated identity resolved for one request.
// It is constructed by the authentication middleware and discarded after the
// response; it is never persisted.
type Principal struct {
	Claims TokenClaims

	// User is the local record matched by the verified subject.
	User *models.User

	// Organization is the local record matched by the token's org claim.
	// Nil when the token carries no org claim or no local record exists.
	Organization *models.Organization
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from the request
// context. Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}
