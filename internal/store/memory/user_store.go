package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/idsync/internal/models"
	"github.com/wolfeidau/idsync/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
// This implementation is for testing and development - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	users          map[uuid.UUID]*models.User // user_id -> User
	usersByClerkID map[string]uuid.UUID       // clerk_id -> user_id
	usersByEmail   map[string]uuid.UUID       // email -> user_id
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:          make(map[uuid.UUID]*models.User),
		usersByClerkID: make(map[string]uuid.UUID),
		usersByEmail:   make(map[string]uuid.UUID),
	}
}

// Create creates a new user in memory.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.UserID]; exists {
		return store.ErrUserAlreadyExists
	}
	if _, exists := s.usersByClerkID[user.ClerkID]; exists {
		return store.ErrUserAlreadyExists
	}
	if _, exists := s.usersByEmail[user.Email]; exists {
		return store.ErrUserAlreadyExists
	}

	// Clone to avoid external modifications
	clone := cloneUser(user)
	s.users[user.UserID] = clone
	s.usersByClerkID[user.ClerkID] = user.UserID
	s.usersByEmail[user.Email] = user.UserID

	return nil
}

// Get retrieves a user by local ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return cloneUser(user), nil
}

// GetByClerkID retrieves a user by provider id.
func (s *UserStore) GetByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, exists := s.usersByClerkID[clerkID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return cloneUser(s.users[userID]), nil
}

// GetByEmail retrieves a user by email address.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, exists := s.usersByEmail[email]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return cloneUser(s.users[userID]), nil
}

// UpdateByClerkID applies a field patch to the user matched by provider id.
func (s *UserStore) UpdateByClerkID(ctx context.Context, clerkID string, update store.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, exists := s.usersByClerkID[clerkID]
	if !exists {
		return store.ErrUserNotFound
	}

	user := s.users[userID]
	if update.Email != nil && *update.Email != user.Email {
		// The patched email must not belong to another record
		if existingID, taken := s.usersByEmail[*update.Email]; taken && existingID != userID {
			return store.ErrUserAlreadyExists
		}
		delete(s.usersByEmail, user.Email)
		user.Email = *update.Email
		s.usersByEmail[user.Email] = userID
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	if update.AvatarURL != nil {
		user.AvatarURL = *update.AvatarURL
	}
	user.UpdatedAt = time.Now()

	return nil
}

// DeleteByClerkID hard-deletes the user matched by provider id.
func (s *UserStore) DeleteByClerkID(ctx context.Context, clerkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, exists := s.usersByClerkID[clerkID]
	if !exists {
		return store.ErrUserNotFound
	}

	user := s.users[userID]
	delete(s.users, userID)
	delete(s.usersByClerkID, clerkID)
	delete(s.usersByEmail, user.Email)

	return nil
}

// AddOrganization adds an organization to the user's membership set if absent.
// The current organization pointer is set only when the user had none.
func (s *UserStore) AddOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return store.ErrUserNotFound
	}

	if !user.MemberOf(orgID) {
		user.OrganizationIDs = append(user.OrganizationIDs, orgID)
	}
	if user.CurrentOrganizationID == nil {
		current := orgID
		user.CurrentOrganizationID = &current
	}
	user.UpdatedAt = time.Now()

	return nil
}

// RemoveOrganization removes an organization from the user's membership set.
// Clears the current organization pointer when it pointed at the removed org.
func (s *UserStore) RemoveOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return store.ErrUserNotFound
	}

	user.OrganizationIDs = removeID(user.OrganizationIDs, orgID)
	if user.CurrentOrganizationID != nil && *user.CurrentOrganizationID == orgID {
		user.CurrentOrganizationID = nil
	}
	user.UpdatedAt = time.Now()

	return nil
}

// SetCurrentOrganization points the user's current organization at orgID.
func (s *UserStore) SetCurrentOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return store.ErrUserNotFound
	}

	current := orgID
	user.CurrentOrganizationID = &current
	user.UpdatedAt = time.Now()

	return nil
}

func cloneUser(user *models.User) *models.User {
	clone := *user
	clone.OrganizationIDs = append([]uuid.UUID(nil), user.OrganizationIDs...)
	if user.CurrentOrganizationID != nil {
		current := *user.CurrentOrganizationID
		clone.CurrentOrganizationID = &current
	}
	return &clone
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
