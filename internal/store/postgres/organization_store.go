package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/idsync/internal/models"
	"github.com/wolfeidau/idsync/internal/store"
)

const orgColumns = `org_id, clerk_id, name, slug, logo_url,
		member_ids, admin_ids, created_at, updated_at`

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
// Member and admin set mutations are single conditional UPDATE statements;
// the admin set is kept a subset of the member set by construction.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, clerk_id, name, slug, logo_url,
			member_ids, admin_ids, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.ClerkID,
		org.Name,
		org.Slug,
		org.LogoURL,
		org.MemberIDs,
		org.AdminIDs,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("clerk_id", org.ClerkID).
		Str("slug", org.Slug).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by local ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.getOrganization(ctx, `SELECT `+orgColumns+` FROM organizations WHERE org_id = $1`, orgID)
}

// GetByClerkID retrieves an organization by provider id.
func (s *OrganizationStore) GetByClerkID(ctx context.Context, clerkID string) (*models.Organization, error) {
	return s.getOrganization(ctx, `SELECT `+orgColumns+` FROM organizations WHERE clerk_id = $1`, clerkID)
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return s.getOrganization(ctx, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug)
}

func (s *OrganizationStore) getOrganization(ctx context.Context, query string, arg any) (*models.Organization, error) {
	var org models.Organization
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&org.OrgID,
		&org.ClerkID,
		&org.Name,
		&org.Slug,
		&org.LogoURL,
		&org.MemberIDs,
		&org.AdminIDs,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return &org, nil
}

// UpdateByClerkID applies a field patch to the organization matched by
// provider id. Nil patch fields keep their current value.
func (s *OrganizationStore) UpdateByClerkID(ctx context.Context, clerkID string, update store.OrganizationUpdate) error {
	query := `
		UPDATE organizations SET
			name = COALESCE($2, name),
			slug = COALESCE($3, slug),
			logo_url = COALESCE($4, logo_url),
			updated_at = now()
		WHERE clerk_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		clerkID,
		update.Name,
		update.Slug,
		update.LogoURL,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("clerk_id", clerkID).
		Msg("Updated organization")

	return nil
}

// DeleteByClerkID hard-deletes the organization matched by provider id.
func (s *OrganizationStore) DeleteByClerkID(ctx context.Context, clerkID string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("clerk_id", clerkID).
		Msg("Deleted organization")

	return nil
}

// AddMember adds a user to the member set if not already present.
func (s *OrganizationStore) AddMember(ctx context.Context, orgID, userID uuid.UUID) error {
	query := `
		UPDATE organizations SET
			member_ids = CASE
				WHEN member_ids @> ARRAY[$2::uuid] THEN member_ids
				ELSE array_append(member_ids, $2::uuid)
			END,
			updated_at = now()
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// RemoveMember removes a user from the member set and the admin set in a
// single UPDATE.
func (s *OrganizationStore) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	query := `
		UPDATE organizations SET
			member_ids = array_remove(member_ids, $2::uuid),
			admin_ids = array_remove(admin_ids, $2::uuid),
			updated_at = now()
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// AddAdmin adds a user to the admin set and the member set, keeping admins a
// subset of members.
func (s *OrganizationStore) AddAdmin(ctx context.Context, orgID, userID uuid.UUID) error {
	query := `
		UPDATE organizations SET
			admin_ids = CASE
				WHEN admin_ids @> ARRAY[$2::uuid] THEN admin_ids
				ELSE array_append(admin_ids, $2::uuid)
			END,
			member_ids = CASE
				WHEN member_ids @> ARRAY[$2::uuid] THEN member_ids
				ELSE array_append(member_ids, $2::uuid)
			END,
			updated_at = now()
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to add admin: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// RemoveAdmin removes a user from the admin set only; membership is kept.
func (s *OrganizationStore) RemoveAdmin(ctx context.Context, orgID, userID uuid.UUID) error {
	query := `
		UPDATE organizations SET
			admin_ids = array_remove(admin_ids, $2::uuid),
			updated_at = now()
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove admin: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// ListByMember returns all organizations the user is a member of.
func (s *OrganizationStore) ListByMember(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	query := `
		SELECT ` + orgColumns + `
		FROM organizations
		WHERE member_ids @> ARRAY[$1::uuid]
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		var org models.Organization
		err := rows.Scan(
			&org.OrgID,
			&org.ClerkID,
			&org.Name,
			&org.Slug,
			&org.LogoURL,
			&org.MemberIDs,
			&org.AdminIDs,
			&org.CreatedAt,
			&org.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, &org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}

	return orgs, nil
}
