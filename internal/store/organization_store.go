package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/idsync/internal/models"
)

// OrganizationUpdate is a field patch applied to an organization matched by
// provider id. Nil fields are left untouched.
type OrganizationUpdate struct {
	Name    *string
	Slug    *string
	LogoURL *string
}

// OrganizationStore defines the interface for organization storage operations.
// Member and admin set mutations are atomic per-row conditional updates; the
// admin set is always kept a subset of the member set.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationAlreadyExists if an organization with the same
	// provider id or slug already exists.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by local ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetByClerkID retrieves an organization by provider id.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	GetByClerkID(ctx context.Context, clerkID string) (*models.Organization, error)

	// GetBySlug retrieves an organization by slug.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)

	// UpdateByClerkID applies a field patch to the organization matched by
	// provider id. Returns ErrOrganizationNotFound if it doesn't exist.
	UpdateByClerkID(ctx context.Context, clerkID string, update OrganizationUpdate) error

	// DeleteByClerkID hard-deletes the organization matched by provider id.
	// Returns ErrOrganizationNotFound if it doesn't exist.
	DeleteByClerkID(ctx context.Context, clerkID string) error

	// AddMember adds a user to the member set if not already present.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	AddMember(ctx context.Context, orgID, userID uuid.UUID) error

	// RemoveMember removes a user from the member set and the admin set in a
	// single operation. Removing a non-member is a no-op.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error

	// AddAdmin adds a user to the admin set if not already present. The user
	// is also added to the member set, keeping admins a subset of members.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	AddAdmin(ctx context.Context, orgID, userID uuid.UUID) error

	// RemoveAdmin removes a user from the admin set only; membership is kept.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	RemoveAdmin(ctx context.Context, orgID, userID uuid.UUID) error

	// ListByMember returns all organizations the user is a member of,
	// ordered by creation time.
	ListByMember(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error)
}
