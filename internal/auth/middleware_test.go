package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/idsync/internal/models"
	"github.com/wolfeidau/idsync/internal/store/memory"
)

// staticTokenVerifier resolves a fixed token string to fixed claims.
type staticTokenVerifier struct {
	token  string
	claims *TokenClaims
}

func (v *staticTokenVerifier) Verify(ctx context.Context, token string) (*TokenClaims, error) {
	if token != v.token {
		return nil, ErrInvalidToken
	}
	return v.claims, nil
}

func TestAuthenticator_Middleware(t *testing.T) {
	ctx := context.Background()

	users := memory.NewUserStore()
	orgs := memory.NewOrganizationStore()

	now := time.Now()
	user := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		ClerkID:   "usr_1",
		Email:     "jane@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, users.Create(ctx, user))

	org := &models.Organization{
		OrgID:     uuid.Must(uuid.NewV7()),
		ClerkID:   "org_1",
		Name:      "Acme",
		Slug:      "acme",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, orgs.Create(ctx, org))

	newHandler := func(verifier TokenVerifier, capture **Principal) http.Handler {
		authenticator := NewAuthenticator(verifier, users, orgs)
		return authenticator.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if capture != nil {
				*capture = PrincipalFromContext(r.Context())
			}
			w.WriteHeader(http.StatusOK)
		}))
	}

	do := func(t *testing.T, handler http.Handler, authorization string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	verifier := &staticTokenVerifier{
		token:  "good-token",
		claims: &TokenClaims{Subject: "usr_1", SessionID: "sess_1", OrgID: "org_1"},
	}

	t.Run("attaches principal with user and organization", func(t *testing.T) {
		var principal *Principal
		rec := do(t, newHandler(verifier, &principal), "Bearer good-token")

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, principal)
		require.Equal(t, user.UserID, principal.User.UserID)
		require.NotNil(t, principal.Organization)
		require.Equal(t, org.OrgID, principal.Organization.OrgID)
		require.Equal(t, "sess_1", principal.Claims.SessionID)
	})

	t.Run("lowercase bearer scheme accepted", func(t *testing.T) {
		rec := do(t, newHandler(verifier, nil), "bearer good-token")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		rec := do(t, newHandler(verifier, nil), "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		rec := do(t, newHandler(verifier, nil), "Basic dXNlcjpwYXNz")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		rec := do(t, newHandler(verifier, nil), "Bearer bad-token")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	})

	t.Run("verified subject without local user", func(t *testing.T) {
		unknown := &staticTokenVerifier{
			token:  "good-token",
			claims: &TokenClaims{Subject: "usr_unmirrored"},
		}
		rec := do(t, newHandler(unknown, nil), "Bearer good-token")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	})

	t.Run("org claim without local organization is tolerated", func(t *testing.T) {
		tolerant := &staticTokenVerifier{
			token:  "good-token",
			claims: &TokenClaims{Subject: "usr_1", OrgID: "org_unmirrored"},
		}
		var principal *Principal
		rec := do(t, newHandler(tolerant, &principal), "Bearer good-token")

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, principal)
		require.Nil(t, principal.Organization)
	})

	t.Run("no org claim", func(t *testing.T) {
		bare := &staticTokenVerifier{
			token:  "good-token",
			claims: &TokenClaims{Subject: "usr_1"},
		}
		var principal *Principal
		rec := do(t, newHandler(bare, &principal), "Bearer good-token")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Nil(t, principal.Organization)
	})
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "standard", header: "Bearer abc123", want: "abc123"},
		{name: "case insensitive scheme", header: "BEARER abc123", want: "abc123"},
		{name: "empty", header: "", want: ""},
		{name: "wrong scheme", header: "Basic abc123", want: ""},
		{name: "no token", header: "Bearer", want: ""},
		{name: "extra parts", header: "Bearer abc 123", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			require.Equal(t, tt.want, extractBearerToken(req))
		})
	}
}
