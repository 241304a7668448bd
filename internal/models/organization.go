package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant mirrored from the provider.
// Membership is derived state: MemberIDs here and User.OrganizationIDs on the
// other side are kept in sync by every mutation.
type Organization struct {
	OrgID   uuid.UUID // UUIDv7, local primary key
	ClerkID string    // Provider id, unique

	Name    string
	Slug    string // Unique, URL-safe identifier
	LogoURL string

	MemberIDs []uuid.UUID
	AdminIDs  []uuid.UUID // Always a subset of MemberIDs

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasMember returns true if the user is in the organization's member set.
func (o *Organization) HasMember(userID uuid.UUID) bool {
	return containsID(o.MemberIDs, userID)
}

// HasAdmin returns true if the user is in the organization's admin set.
func (o *Organization) HasAdmin(userID uuid.UUID) bool {
	return containsID(o.AdminIDs, userID)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
