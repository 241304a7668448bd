package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/idsync/internal/models"
	"github.com/wolfeidau/idsync/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for testing and development - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	orgs          map[uuid.UUID]*models.Organization // org_id -> Organization
	orgsByClerkID map[string]uuid.UUID               // clerk_id -> org_id
	orgsBySlug    map[string]uuid.UUID               // slug -> org_id
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		orgs:          make(map[uuid.UUID]*models.Organization),
		orgsByClerkID: make(map[string]uuid.UUID),
		orgsBySlug:    make(map[string]uuid.UUID),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgs[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.orgsByClerkID[org.ClerkID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.orgsBySlug[org.Slug]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	clone := cloneOrganization(org)
	s.orgs[org.OrgID] = clone
	s.orgsByClerkID[org.ClerkID] = org.OrgID
	s.orgsBySlug[org.Slug] = org.OrgID

	return nil
}

// Get retrieves an organization by local ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return cloneOrganization(org), nil
}

// GetByClerkID retrieves an organization by provider id.
func (s *OrganizationStore) GetByClerkID(ctx context.Context, clerkID string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.orgsByClerkID[clerkID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return cloneOrganization(s.orgs[orgID]), nil
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.orgsBySlug[slug]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return cloneOrganization(s.orgs[orgID]), nil
}

// UpdateByClerkID applies a field patch to the organization matched by provider id.
func (s *OrganizationStore) UpdateByClerkID(ctx context.Context, clerkID string, update store.OrganizationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orgID, exists := s.orgsByClerkID[clerkID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	org := s.orgs[orgID]
	if update.Name != nil {
		org.Name = *update.Name
	}
	if update.Slug != nil && *update.Slug != org.Slug {
		// The patched slug must not belong to another record
		if existingID, taken := s.orgsBySlug[*update.Slug]; taken && existingID != orgID {
			return store.ErrOrganizationAlreadyExists
		}
		delete(s.orgsBySlug, org.Slug)
		org.Slug = *update.Slug
		s.orgsBySlug[org.Slug] = orgID
	}
	if update.LogoURL != nil {
		org.LogoURL = *update.LogoURL
	}
	org.UpdatedAt = time.Now()

	return nil
}

// DeleteByClerkID hard-deletes the organization matched by provider id.
func (s *OrganizationStore) DeleteByClerkID(ctx context.Context, clerkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orgID, exists := s.orgsByClerkID[clerkID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	org := s.orgs[orgID]
	delete(s.orgs, orgID)
	delete(s.orgsByClerkID, clerkID)
	delete(s.orgsBySlug, org.Slug)

	return nil
}

// AddMember adds a user to the member set if not already present.
func (s *OrganizationStore) AddMember(ctx context.Context, orgID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	if !org.HasMember(userID) {
		org.MemberIDs = append(org.MemberIDs, userID)
	}
	org.UpdatedAt = time.Now()

	return nil
}

// RemoveMember removes a user from the member set and the admin set.
func (s *OrganizationStore) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	org.MemberIDs = removeID(org.MemberIDs, userID)
	org.AdminIDs = removeID(org.AdminIDs, userID)
	org.UpdatedAt = time.Now()

	return nil
}

// AddAdmin adds a user to the admin set, and to the member set as well so the
// admin set stays a subset of the member set.
func (s *OrganizationStore) AddAdmin(ctx context.Context, orgID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	if !org.HasAdmin(userID) {
		org.AdminIDs = append(org.AdminIDs, userID)
	}
	if !org.HasMember(userID) {
		org.MemberIDs = append(org.MemberIDs, userID)
	}
	org.UpdatedAt = time.Now()

	return nil
}

// RemoveAdmin removes a user from the admin set only.
func (s *OrganizationStore) RemoveAdmin(ctx context.Context, orgID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	org.AdminIDs = removeID(org.AdminIDs, userID)
	org.UpdatedAt = time.Now()

	return nil
}

// ListByMember returns all organizations the user is a member of.
func (s *OrganizationStore) ListByMember(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Organization
	for _, org := range s.orgs {
		if org.HasMember(userID) {
			result = append(result, cloneOrganization(org))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func cloneOrganization(org *models.Organization) *models.Organization {
	clone := *org
	clone.MemberIDs = append([]uuid.UUID(nil), org.MemberIDs...)
	clone.AdminIDs = append([]uuid.UUID(nil), org.AdminIDs...)
	return &clone
}
