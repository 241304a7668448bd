package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/idsync/internal/models"
)

// UserUpdate is a field patch applied to a user matched by provider id.
// Nil fields are left untouched.
type UserUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	AvatarURL *string
}

// UserStore defines the interface for user storage operations.
// Set mutations (AddOrganization, RemoveOrganization) are atomic per-row
// conditional updates so that redelivered webhook events converge instead of
// duplicating or corrupting state.
type UserStore interface {
	// Create creates a new user in the store.
	// Returns ErrUserAlreadyExists if a user with the same provider id or
	// email already exists.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by local ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByClerkID retrieves a user by provider id.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetByClerkID(ctx context.Context, clerkID string) (*models.User, error)

	// GetByEmail retrieves a user by email address.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdateByClerkID applies a field patch to the user matched by provider id.
	// Returns ErrUserNotFound if the user doesn't exist.
	UpdateByClerkID(ctx context.Context, clerkID string, update UserUpdate) error

	// DeleteByClerkID hard-deletes the user matched by provider id.
	// Returns ErrUserNotFound if the user doesn't exist.
	DeleteByClerkID(ctx context.Context, clerkID string) error

	// AddOrganization adds an organization to the user's membership set if it
	// is not already present. The user's current organization pointer is set
	// only when the user had none.
	// Returns ErrUserNotFound if the user doesn't exist.
	AddOrganization(ctx context.Context, userID, orgID uuid.UUID) error

	// RemoveOrganization removes an organization from the user's membership
	// set if present. When the removed organization was the user's current
	// organization, the pointer is cleared.
	// Returns ErrUserNotFound if the user doesn't exist.
	RemoveOrganization(ctx context.Context, userID, orgID uuid.UUID) error

	// SetCurrentOrganization points the user's current organization at orgID.
	// Returns ErrUserNotFound if the user doesn't exist.
	SetCurrentOrganization(ctx context.Context, userID, orgID uuid.UUID) error
}
