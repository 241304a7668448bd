package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/idsync/internal/store"
)

// Authenticator resolves bearer tokens into principals. It only ever reads
// from the stores; records are created by webhook reconciliation, so a
// verified subject without a local user is rejected.
type Authenticator struct {
	verifier TokenVerifier
	users    store.UserStore
	orgs     store.OrganizationStore
}

// NewAuthenticator creates a request authenticator backed by the given token
// verifier and identity stores.
func NewAuthenticator(verifier TokenVerifier, users store.UserStore, orgs store.OrganizationStore) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		users:    users,
		orgs:     orgs,
	}
}

// Middleware returns an HTTP middleware that authenticates requests.
// On success the principal is attached to the request context. Every
// authentication failure collapses to the same generic 401 response so the
// caller cannot distinguish unknown accounts from bad tokens.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tokenString := extractBearerToken(r)
			if tokenString == "" {
				log.Warn().Str("path", r.URL.Path).Msg("Missing bearer token")
				unauthorized(w)
				return
			}

			claims, err := a.verifier.Verify(ctx, tokenString)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Token verification failed")
				unauthorized(w)
				return
			}

			user, err := a.users.GetByClerkID(ctx, claims.Subject)
			if err != nil {
				if errors.Is(err, store.ErrUserNotFound) {
					log.Warn().Str("subject", claims.Subject).Msg("Verified subject has no local user")
					unauthorized(w)
					return
				}
				log.Error().Err(err).Msg("User lookup failed")
				internalError(w)
				return
			}

			principal := &Principal{
				Claims: *claims,
				User:   user,
			}

			// An org claim without a mirrored record is tolerated, the
			// reconciler may simply not have seen the org yet.
			if claims.OrgID != "" {
				org, err := a.orgs.GetByClerkID(ctx, claims.OrgID)
				switch {
				case err == nil:
					principal.Organization = org
				case errors.Is(err, store.ErrOrganizationNotFound):
					log.Debug().Str("org_id", claims.OrgID).Msg("Token org claim has no local organization")
				default:
					log.Error().Err(err).Msg("Organization lookup failed")
					internalError(w)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return parts[1]
}

func unauthorized(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func internalError(w http.ResponseWriter) {
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`)) //nolint:errcheck
}
