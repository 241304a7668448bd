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

const userColumns = `user_id, clerk_id, email, first_name, last_name, avatar_url,
		organization_ids, current_organization_id, created_at, updated_at`

// UserStore implements store.UserStore using PostgreSQL.
// Set mutations are expressed as single conditional UPDATE statements so that
// redelivered webhook events converge without read-modify-write races.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
// It shares the connection pool with other stores.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Create creates a new user in the database.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (
			user_id, clerk_id, email, first_name, last_name, avatar_url,
			organization_ids, current_organization_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := s.pool.Exec(ctx, query,
		user.UserID,
		user.ClerkID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.AvatarURL,
		user.OrganizationIDs,
		user.CurrentOrganizationID,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Str("clerk_id", user.ClerkID).
		Msg("Created user")

	return nil
}

// Get retrieves a user by local ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
}

// GetByClerkID retrieves a user by provider id.
func (s *UserStore) GetByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, clerkID)
}

// GetByEmail retrieves a user by email address.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *UserStore) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.UserID,
		&user.ClerkID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.AvatarURL,
		&user.OrganizationIDs,
		&user.CurrentOrganizationID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	return &user, nil
}

// UpdateByClerkID applies a field patch to the user matched by provider id.
// Nil patch fields keep their current value.
func (s *UserStore) UpdateByClerkID(ctx context.Context, clerkID string, update store.UserUpdate) error {
	query := `
		UPDATE users SET
			email = COALESCE($2, email),
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			avatar_url = COALESCE($5, avatar_url),
			updated_at = now()
		WHERE clerk_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		clerkID,
		update.Email,
		update.FirstName,
		update.LastName,
		update.AvatarURL,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to update user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	log.Debug().
		Str("clerk_id", clerkID).
		Msg("Updated user")

	return nil
}

// DeleteByClerkID hard-deletes the user matched by provider id.
func (s *UserStore) DeleteByClerkID(ctx context.Context, clerkID string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	log.Info().
		Str("clerk_id", clerkID).
		Msg("Deleted user")

	return nil
}

// AddOrganization adds an organization to the user's membership set if absent.
// The current organization pointer is set only when the user had none. Both
// effects happen in one conditional UPDATE.
func (s *UserStore) AddOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	query := `
		UPDATE users SET
			organization_ids = CASE
				WHEN organization_ids @> ARRAY[$2::uuid] THEN organization_ids
				ELSE array_append(organization_ids, $2::uuid)
			END,
			current_organization_id = COALESCE(current_organization_id, $2::uuid),
			updated_at = now()
		WHERE user_id = $1
	`

	result, err := s.pool.Exec(ctx, query, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to add organization to user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

// RemoveOrganization removes an organization from the user's membership set
// and clears the current organization pointer when it pointed at the removed
// organization, as a single conditional UPDATE.
func (s *UserStore) RemoveOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	query := `
		UPDATE users SET
			organization_ids = array_remove(organization_ids, $2::uuid),
			current_organization_id = CASE
				WHEN current_organization_id = $2::uuid THEN NULL
				ELSE current_organization_id
			END,
			updated_at = now()
		WHERE user_id = $1
	`

	result, err := s.pool.Exec(ctx, query, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to remove organization from user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

// SetCurrentOrganization points the user's current organization at orgID.
func (s *UserStore) SetCurrentOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	query := `
		UPDATE users SET
			current_organization_id = $2,
			updated_at = now()
		WHERE user_id = $1
	`

	result, err := s.pool.Exec(ctx, query, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to set current organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}
