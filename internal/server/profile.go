package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/idsync/internal/auth"
	"github.com/wolfeidau/idsync/internal/models"
	"github.com/wolfeidau/idsync/internal/store"
)

// userProjection is the public-safe view of a user. Membership id lists are
// deliberately absent.
type userProjection struct {
	ID        string `json:"id"`
	ClerkID   string `json:"clerkId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	AvatarURL string `json:"avatarUrl"`
}

// organizationProjection is the public-safe view of an organization. Member
// and admin id lists are deliberately absent.
type organizationProjection struct {
	ID      string `json:"id"`
	ClerkID string `json:"clerkId"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	LogoURL string `json:"logoUrl"`
}

type currentUserResponse struct {
	User         userProjection          `json:"user"`
	Organization *organizationProjection `json:"organization"`
}

type profileResponse struct {
	Profile profileData `json:"profile"`
}

type profileData struct {
	UserID           string  `json:"userId"`
	Email            string  `json:"email"`
	FullName         string  `json:"fullName"`
	OrganizationName *string `json:"organizationName"`
}

func projectUser(user *models.User) userProjection {
	return userProjection{
		ID:        user.UserID.String(),
		ClerkID:   user.ClerkID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		AvatarURL: user.AvatarURL,
	}
}

func projectOrganization(org *models.Organization) organizationProjection {
	return organizationProjection{
		ID:      org.OrgID.String(),
		ClerkID: org.ClerkID,
		Name:    org.Name,
		Slug:    org.Slug,
		LogoURL: org.LogoURL,
	}
}

// handleCurrentUser returns the authenticated principal's merged identity
// view: the user plus the organization attached to the session, if any.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp := currentUserResponse{
		User: projectUser(principal.User),
	}
	if principal.Organization != nil {
		org := projectOrganization(principal.Organization)
		resp.Organization = &org
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleProfile returns a flattened profile summary.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile := profileData{
		UserID:   principal.User.UserID.String(),
		Email:    principal.User.Email,
		FullName: principal.User.FullName(),
	}
	if principal.Organization != nil {
		name := principal.Organization.Name
		profile.OrganizationName = &name
	}

	writeJSON(w, http.StatusOK, profileResponse{Profile: profile})
}

// handleListOrganizations returns the organizations the authenticated user
// belongs to, as public projections.
func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orgs, err := s.orgs.ListByMember(r.Context(), principal.User.UserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list organizations")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	projections := make([]organizationProjection, 0, len(orgs))
	for _, org := range orgs {
		projections = append(projections, projectOrganization(org))
	}

	writeJSON(w, http.StatusOK, map[string][]organizationProjection{"organizations": projections})
}

// handleOrganizationBySlug resolves an organization by its slug for the
// authenticated caller. Non-members get the same 404 as a missing slug so
// the endpoint does not reveal which organizations exist.
func (s *Server) handleOrganizationBySlug(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	org, err := s.orgs.GetBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			writeError(w, http.StatusNotFound, "organization not found")
			return
		}
		log.Error().Err(err).Msg("Failed to look up organization")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !principal.User.MemberOf(org.OrgID) {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]organizationProjection{"organization": projectOrganization(org)})
}

type setCurrentOrganizationRequest struct {
	OrganizationID string `json:"organizationId"`
}

// handleSetCurrentOrganization switches the user's active organization. The
// target must be in the caller's membership set.
func (s *Server) handleSetCurrentOrganization(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req setCurrentOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID, err := uuid.Parse(req.OrganizationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	if !principal.User.MemberOf(orgID) {
		writeError(w, http.StatusBadRequest, "not a member of organization")
		return
	}

	if err := s.users.SetCurrentOrganization(r.Context(), principal.User.UserID, orgID); err != nil {
		log.Error().Err(err).Msg("Failed to set current organization")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
