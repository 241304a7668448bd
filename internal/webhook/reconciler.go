package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/idsync/internal/models"
	"github.com/wolfeidau/idsync/internal/store"
)

// ErrMissingReferencedEntity is returned when a membership event references a
// user or organization that has no local record. This is the one fatal
// resolution failure: membership cannot exist without both sides, so the
// delivery is failed and the provider retries.
var ErrMissingReferencedEntity = errors.New("referenced entity not found")

type handlerFunc func(ctx context.Context, data json.RawMessage) error

// Reconciler applies provider webhook events to the local identity stores.
// Every handler is idempotent: the provider redelivers events at least once
// and possibly out of order, so reapplying a payload must converge on the
// same state.
type Reconciler struct {
	verifier SignatureVerifier
	users    store.UserStore
	orgs     store.OrganizationStore
	handlers map[string]handlerFunc
}

// NewReconciler creates a reconciler over the given stores. Payloads are
// authenticated by the verifier before any interpretation.
func NewReconciler(verifier SignatureVerifier, users store.UserStore, orgs store.OrganizationStore) *Reconciler {
	r := &Reconciler{
		verifier: verifier,
		users:    users,
		orgs:     orgs,
	}

	r.handlers = map[string]handlerFunc{
		EventUserCreated:         r.handleUserCreated,
		EventUserUpdated:         r.handleUserUpdated,
		EventUserDeleted:         r.handleUserDeleted,
		EventOrganizationCreated: r.handleOrganizationCreated,
		EventOrganizationUpdated: r.handleOrganizationUpdated,
		EventOrganizationDeleted: r.handleOrganizationDeleted,
		EventMembershipCreated:   r.handleMembershipCreated,
		EventMembershipUpdated:   r.handleMembershipUpdated,
		EventMembershipDeleted:   r.handleMembershipDeleted,
		EventInvitationCreated:   r.handleInvitation,
		EventInvitationAccepted:  r.handleInvitation,
		EventInvitationRevoked:   r.handleInvitation,
	}

	return r
}

// Process verifies a raw webhook delivery and applies it to the stores.
// A returned error means the delivery must be reported as failed so the
// provider redelivers it.
func (r *Reconciler) Process(ctx context.Context, payload []byte, headers SignatureHeaders) error {
	if err := r.verifier.Verify(payload, headers); err != nil {
		return err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to decode webhook envelope: %w", err)
	}

	handler, ok := r.handlers[event.Type]
	if !ok {
		log.Debug().Str("type", event.Type).Str("delivery_id", headers.ID).Msg("Ignoring unhandled webhook event type")
		return nil
	}

	if err := handler(ctx, event.Data); err != nil {
		log.Error().Err(err).
			Str("type", event.Type).
			Str("delivery_id", headers.ID).
			Msg("Webhook reconciliation failed")
		return err
	}

	return nil
}

// handleUserCreated mirrors a new provider user. Redelivery of a creation
// event for an existing user is a no-op.
func (r *Reconciler) handleUserCreated(ctx context.Context, data json.RawMessage) error {
	var payload userData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode user payload: %w", err)
	}

	_, err := r.users.GetByClerkID(ctx, payload.ID)
	if err == nil {
		log.Debug().Str("clerk_id", payload.ID).Msg("User already mirrored, skipping create")
		return nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return err
	}

	now := time.Now()
	user := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		ClerkID:   payload.ID,
		Email:     payload.primaryEmail(),
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		AvatarURL: payload.avatarURL(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.users.Create(ctx, user); err != nil {
		// A concurrent redelivery may have created the record between the
		// lookup and the insert
		if errors.Is(err, store.ErrUserAlreadyExists) {
			return nil
		}
		return err
	}

	log.Info().Str("clerk_id", payload.ID).Str("user_id", user.UserID.String()).Msg("Mirrored new user")
	return nil
}

// handleUserUpdated patches the mirrored user's profile fields. A record
// miss is logged and swallowed rather than failing the delivery, which would
// otherwise put a permanently unsatisfiable event into a redelivery loop.
func (r *Reconciler) handleUserUpdated(ctx context.Context, data json.RawMessage) error {
	var payload userData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode user payload: %w", err)
	}

	email := payload.primaryEmail()
	avatar := payload.avatarURL()
	err := r.users.UpdateByClerkID(ctx, payload.ID, store.UserUpdate{
		Email:     &email,
		FirstName: &payload.FirstName,
		LastName:  &payload.LastName,
		AvatarURL: &avatar,
	})

	if errors.Is(err, store.ErrUserNotFound) {
		log.Warn().Str("clerk_id", payload.ID).Msg("Update for unknown user, ignoring")
		return nil
	}

	return err
}

// handleUserDeleted hard-deletes the mirrored user. Deleting an already
// absent user is a no-op.
func (r *Reconciler) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var payload userData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode user payload: %w", err)
	}

	err := r.users.DeleteByClerkID(ctx, payload.ID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil
	}

	return err
}

// handleOrganizationCreated mirrors a new provider organization with empty
// member and admin sets.
func (r *Reconciler) handleOrganizationCreated(ctx context.Context, data json.RawMessage) error {
	var payload organizationData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode organization payload: %w", err)
	}

	_, err := r.orgs.GetByClerkID(ctx, payload.ID)
	if err == nil {
		log.Debug().Str("clerk_id", payload.ID).Msg("Organization already mirrored, skipping create")
		return nil
	}
	if !errors.Is(err, store.ErrOrganizationNotFound) {
		return err
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:     uuid.Must(uuid.NewV7()),
		ClerkID:   payload.ID,
		Name:      payload.Name,
		Slug:      payload.Slug,
		LogoURL:   payload.logoURL(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, store.ErrOrganizationAlreadyExists) {
			return nil
		}
		return err
	}

	log.Info().Str("clerk_id", payload.ID).Str("org_id", org.OrgID.String()).Msg("Mirrored new organization")
	return nil
}

// handleOrganizationUpdated patches the mirrored organization's fields.
// A record miss is a no-op, mirroring the lenient user.updated behavior.
func (r *Reconciler) handleOrganizationUpdated(ctx context.Context, data json.RawMessage) error {
	var payload organizationData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode organization payload: %w", err)
	}

	logo := payload.logoURL()
	err := r.orgs.UpdateByClerkID(ctx, payload.ID, store.OrganizationUpdate{
		Name:    &payload.Name,
		Slug:    &payload.Slug,
		LogoURL: &logo,
	})

	if errors.Is(err, store.ErrOrganizationNotFound) {
		log.Warn().Str("clerk_id", payload.ID).Msg("Update for unknown organization, ignoring")
		return nil
	}

	return err
}

// handleOrganizationDeleted hard-deletes the mirrored organization.
func (r *Reconciler) handleOrganizationDeleted(ctx context.Context, data json.RawMessage) error {
	var payload organizationData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode organization payload: %w", err)
	}

	err := r.orgs.DeleteByClerkID(ctx, payload.ID)
	if errors.Is(err, store.ErrOrganizationNotFound) {
		return nil
	}

	return err
}

// handleMembershipCreated links a user and an organization on both sides.
// Both entities must already be mirrored; a miss fails the delivery so the
// provider retries once the user/organization events have landed.
func (r *Reconciler) handleMembershipCreated(ctx context.Context, data json.RawMessage) error {
	payload, user, org, err := r.resolveMembership(ctx, data)
	if err != nil {
		return err
	}

	if err := r.orgs.AddMember(ctx, org.OrgID, user.UserID); err != nil {
		return err
	}
	if err := r.users.AddOrganization(ctx, user.UserID, org.OrgID); err != nil {
		return err
	}
	if payload.isAdminRole() {
		if err := r.orgs.AddAdmin(ctx, org.OrgID, user.UserID); err != nil {
			return err
		}
	}

	log.Info().
		Str("user", user.ClerkID).
		Str("org", org.ClerkID).
		Str("role", payload.Role).
		Msg("Membership created")
	return nil
}

// handleMembershipUpdated self-heals a possibly missed creation event and
// synchronizes admin status with the payload role. Demotion removes the user
// from the admin set only.
func (r *Reconciler) handleMembershipUpdated(ctx context.Context, data json.RawMessage) error {
	payload, user, org, err := r.resolveMembership(ctx, data)
	if err != nil {
		return err
	}

	if !org.HasMember(user.UserID) {
		if err := r.orgs.AddMember(ctx, org.OrgID, user.UserID); err != nil {
			return err
		}
		if err := r.users.AddOrganization(ctx, user.UserID, org.OrgID); err != nil {
			return err
		}
	}

	if payload.isAdminRole() {
		if err := r.orgs.AddAdmin(ctx, org.OrgID, user.UserID); err != nil {
			return err
		}
	} else if org.HasAdmin(user.UserID) {
		if err := r.orgs.RemoveAdmin(ctx, org.OrgID, user.UserID); err != nil {
			return err
		}
	}

	log.Info().
		Str("user", user.ClerkID).
		Str("org", org.ClerkID).
		Str("role", payload.Role).
		Msg("Membership updated")
	return nil
}

// handleMembershipDeleted unlinks a user and an organization. Resolution
// misses are non-fatal: when either side is already gone the membership is
// gone in effect, and failing the delivery would only trigger pointless
// redelivery of a permanently unsatisfiable event.
func (r *Reconciler) handleMembershipDeleted(ctx context.Context, data json.RawMessage) error {
	var payload membershipData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode membership payload: %w", err)
	}

	user, err := r.users.GetByClerkID(ctx, payload.PublicUserData.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Warn().Str("clerk_id", payload.PublicUserData.UserID).Msg("Membership deletion for unknown user, ignoring")
			return nil
		}
		return err
	}

	org, err := r.orgs.GetByClerkID(ctx, payload.Organization.ID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			log.Warn().Str("clerk_id", payload.Organization.ID).Msg("Membership deletion for unknown organization, ignoring")
			return nil
		}
		return err
	}

	// RemoveMember drops admin status as well
	if err := r.orgs.RemoveMember(ctx, org.OrgID, user.UserID); err != nil {
		return err
	}
	if err := r.users.RemoveOrganization(ctx, user.UserID, org.OrgID); err != nil {
		return err
	}

	log.Info().
		Str("user", user.ClerkID).
		Str("org", org.ClerkID).
		Msg("Membership deleted")
	return nil
}

// handleInvitation tracks invitation lifecycle events without mutating
// state. An accepted invitation is followed by a membership creation event
// which performs the actual linking.
func (r *Reconciler) handleInvitation(ctx context.Context, data json.RawMessage) error {
	var payload invitationData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to decode invitation payload: %w", err)
	}

	event := log.Info().
		Str("invitation_id", payload.ID).
		Str("org", payload.OrganizationID).
		Str("email", payload.EmailAddress).
		Str("status", payload.Status)

	// Note whether the invited address already has a mirrored user, which
	// tells apart invites to existing users from invites to newcomers
	if user, err := r.users.GetByEmail(ctx, payload.EmailAddress); err == nil {
		event = event.Str("user_id", user.UserID.String())
	}

	event.Msg("Organization invitation event")
	return nil
}

// resolveMembership decodes a membership payload and resolves both referenced
// entities, failing with ErrMissingReferencedEntity when either is absent.
func (r *Reconciler) resolveMembership(ctx context.Context, data json.RawMessage) (*membershipData, *models.User, *models.Organization, error) {
	var payload membershipData
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decode membership payload: %w", err)
	}

	user, err := r.users.GetByClerkID(ctx, payload.PublicUserData.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: user %s", ErrMissingReferencedEntity, payload.PublicUserData.UserID)
		}
		return nil, nil, nil, err
	}

	org, err := r.orgs.GetByClerkID(ctx, payload.Organization.ID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: organization %s", ErrMissingReferencedEntity, payload.Organization.ID)
		}
		return nil, nil, nil, err
	}

	return &payload, user, org, nil
}
