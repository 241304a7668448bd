package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/idsync/internal/store"
	"github.com/wolfeidau/idsync/internal/webhook"
)

// Server owns the HTTP surface: the webhook ingestion endpoint, the
// authenticated profile API, and the health check.
type Server struct {
	reconciler *webhook.Reconciler
	users      store.UserStore
	orgs       store.OrganizationStore
}

// New creates a server over the given reconciler and stores.
func New(reconciler *webhook.Reconciler, users store.UserStore, orgs store.OrganizationStore) *Server {
	return &Server{
		reconciler: reconciler,
		users:      users,
		orgs:       orgs,
	}
}

// Register wires the server's routes into the mux. API routes are wrapped
// with the supplied authentication middleware; the webhook and health
// endpoints stay public (the webhook authenticates via its signature).
func (s *Server) Register(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhooks/clerk", s.handleClerkWebhook)

	mux.Handle("GET /api/users/me", authMiddleware(http.HandlerFunc(s.handleCurrentUser)))
	mux.Handle("GET /api/users/profile", authMiddleware(http.HandlerFunc(s.handleProfile)))
	mux.Handle("GET /api/organizations", authMiddleware(http.HandlerFunc(s.handleListOrganizations)))
	mux.Handle("GET /api/organizations/{slug}", authMiddleware(http.HandlerFunc(s.handleOrganizationBySlug)))
	mux.Handle("PUT /api/users/me/organization", authMiddleware(http.HandlerFunc(s.handleSetCurrentOrganization)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
