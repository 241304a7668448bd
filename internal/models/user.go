package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an identity mirrored from the provider.
// Users are created and mutated by webhook reconciliation; the request
// authenticator only ever reads them.
type User struct {
	UserID  uuid.UUID // UUIDv7, local primary key
	ClerkID string    // Provider id, unique, the join key for webhook events

	Email     string // Primary email address, unique
	FirstName string
	LastName  string
	AvatarURL string

	// OrganizationIDs is the set of organizations this user belongs to.
	// Kept bidirectionally consistent with Organization.MemberIDs.
	OrganizationIDs []uuid.UUID

	// CurrentOrganizationID is the user's active organization.
	// Nil, or an element of OrganizationIDs.
	CurrentOrganizationID *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName returns the display name assembled from the name parts.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// MemberOf returns true if the user belongs to the given organization.
func (u *User) MemberOf(orgID uuid.UUID) bool {
	for _, id := range u.OrganizationIDs {
		if id == orgID {
			return true
		}
	}
	return false
}
