package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Sentinel errors for authentication failures. Callers collapse all of these
// to a single generic unauthorized response; the distinction is for logs only.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrUserUnknown  = errors.New("no local user for verified subject")
)

// TokenClaims are the verified claims extracted from a bearer token.
type TokenClaims struct {
	Subject   string // Provider user id (sub)
	SessionID string // Provider session id (sid)
	OrgID     string // Provider organization id (org_id), optional
}

// TokenVerifier validates a bearer token against the identity provider's
// published key material and extracts the authenticated claims.
// Implementations hold no request state; tests substitute a fake.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*TokenClaims, error)
}

// ClerkVerifier verifies Clerk session JWTs using the issuer's JWKS endpoint.
// Keys are fetched lazily and refreshed in the background by keyfunc.
type ClerkVerifier struct {
	issuer string
	jwks   *keyfunc.JWKS
}

// ClerkVerifierConfig configures a ClerkVerifier.
type ClerkVerifierConfig struct {
	// Issuer is the trusted token issuer, e.g. https://example.clerk.accounts.dev
	Issuer string

	// JWKSURL overrides the JWKS endpoint. Defaults to the issuer's
	// /.well-known/jwks.json.
	JWKSURL string

	// Client is the HTTP client used to fetch the JWKS. Pass a caching
	// client to avoid refetching key material on refresh.
	Client *http.Client
}

// NewClerkVerifier creates a verifier bound to the configured trusted issuer.
func NewClerkVerifier(ctx context.Context, cfg ClerkVerifierConfig) (*ClerkVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		Client:            cfg.Client,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Warn().Err(err).Str("jwks_url", jwksURL).Msg("JWKS refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}

	return &ClerkVerifier{
		issuer: cfg.Issuer,
		jwks:   jwks,
	}, nil
}

// Verify checks the token signature, issuer, and expiry, and extracts the
// subject, session, and organization claims. All failures are reported as
// ErrInvalidToken.
func (v *ClerkVerifier) Verify(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	return &TokenClaims{
		Subject:   subject,
		SessionID: stringClaim(claims, "sid"),
		OrgID:     stringClaim(claims, "org_id"),
	}, nil
}

// Close stops the background JWKS refresh.
func (v *ClerkVerifier) Close() {
	v.jwks.EndBackground()
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}
