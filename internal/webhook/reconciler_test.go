package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/idsync/internal/models"
	"github.com/wolfeidau/idsync/internal/store"
	"github.com/wolfeidau/idsync/internal/store/memory"
)

// staticSignatureVerifier stands in for the svix scheme so reconciliation
// behavior can be tested without constructing signed deliveries.
type staticSignatureVerifier struct {
	err error
}

func (v *staticSignatureVerifier) Verify(payload []byte, headers SignatureHeaders) error {
	return v.err
}

type reconcilerFixture struct {
	reconciler *Reconciler
	users      store.UserStore
	orgs       store.OrganizationStore
}

func newReconcilerFixture() *reconcilerFixture {
	users := memory.NewUserStore()
	orgs := memory.NewOrganizationStore()

	return &reconcilerFixture{
		reconciler: NewReconciler(&staticSignatureVerifier{}, users, orgs),
		users:      users,
		orgs:       orgs,
	}
}

func (f *reconcilerFixture) deliver(t *testing.T, eventType string, data string) error {
	t.Helper()

	payload := fmt.Sprintf(`{"type":%q,"data":%s}`, eventType, data)
	return f.reconciler.Process(context.Background(), []byte(payload), SignatureHeaders{
		ID:        "msg_test",
		Timestamp: "0",
		Signature: "v1,unchecked",
	})
}

const userCreatedData = `{
	"id": "usr_1",
	"first_name": "Jane",
	"last_name": "Doe",
	"image_url": "https://img.example.com/jane.png",
	"primary_email_address_id": "eml_2",
	"email_addresses": [
		{"id": "eml_1", "email_address": "old@example.com"},
		{"id": "eml_2", "email_address": "jane@example.com"}
	]
}`

const orgCreatedData = `{
	"id": "org_1",
	"name": "Acme",
	"slug": "acme",
	"image_url": "https://img.example.com/acme.png"
}`

func membershipEventData(userID, orgID, role string) string {
	data := map[string]any{
		"role":         role,
		"organization": map[string]any{"id": orgID, "name": "Acme", "slug": "acme"},
		"public_user_data": map[string]any{
			"user_id": userID,
		},
	}
	encoded, _ := json.Marshal(data)
	return string(encoded)
}

func TestReconciler_Process(t *testing.T) {
	t.Run("rejects unverified payload before interpretation", func(t *testing.T) {
		users := memory.NewUserStore()
		orgs := memory.NewOrganizationStore()
		r := NewReconciler(&staticSignatureVerifier{err: ErrInvalidSignature}, users, orgs)

		payload := fmt.Sprintf(`{"type":"user.created","data":%s}`, userCreatedData)
		err := r.Process(context.Background(), []byte(payload), SignatureHeaders{})
		require.ErrorIs(t, err, ErrInvalidSignature)

		_, err = users.GetByClerkID(context.Background(), "usr_1")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("malformed envelope fails the delivery", func(t *testing.T) {
		f := newReconcilerFixture()

		err := f.reconciler.Process(context.Background(), []byte(`{not json`), SignatureHeaders{ID: "msg_test"})
		require.Error(t, err)
	})

	t.Run("unknown event type is accepted and ignored", func(t *testing.T) {
		f := newReconcilerFixture()

		err := f.deliver(t, "session.created", `{"id":"sess_1"}`)
		require.NoError(t, err)
	})
}

func TestReconciler_UserEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("user created", func(t *testing.T) {
		f := newReconcilerFixture()

		require.NoError(t, f.deliver(t, EventUserCreated, userCreatedData))

		user, err := f.users.GetByClerkID(ctx, "usr_1")
		require.NoError(t, err)
		require.Equal(t, "jane@example.com", user.Email)
		require.Equal(t, "Jane", user.FirstName)
		require.Equal(t, "https://img.example.com/jane.png", user.AvatarURL)
		require.Empty(t, user.OrganizationIDs)
		require.Nil(t, user.CurrentOrganizationID)
	})

	t.Run("user created redelivery is a no-op", func(t *testing.T) {
		f := newReconcilerFixture()

		require.NoError(t, f.deliver(t, EventUserCreated, userCreatedData))
		before, err := f.users.GetByClerkID(ctx, "usr_1")
		require.NoError(t, err)

		require.NoError(t, f.deliver(t, EventUserCreated, userCreatedData))
		after, err := f.users.GetByClerkID(ctx, "usr_1")
		require.NoError(t, err)
		require.Equal(t, before.UserID, after.UserID)
	})

	t.Run("user updated patches profile fields", func(t *testing.T) {
		f := newReconcilerFixture()
		require.NoError(t, f.deliver(t, EventUserCreated, userCreatedData))

		require.NoError(t, f.deliver(t, EventUserUpdated, `{
			"id": "usr_1",
			"first_name": "Janet",
			"last_name": "Doe",
			"profile_image_url": "https://img.example.com/janet.png",
			"primary_email_address_id": "eml_2",
			"email_addresses": [{"id": "eml_2", "email_address": "janet@example.com"}]
		}`))

		user, err := f.users.GetByClerkID(ctx, "usr_1")
		require.NoError(t, err)
		require.Equal(t, "Janet", user.FirstName)
		require.Equal(t, "janet@example.com", user.Email)
		require.Equal(t, "https://img.example.com/janet.png", user.AvatarURL)
	})

	t.Run("user updated for unknown user succeeds without creating", func(t *testing.T) {
		f := newReconcilerFixture()

		require.NoError(t, f.deliver(t, EventUserUpdated, userCreatedData))

		_, err := f.users.GetByClerkID(ctx, "usr_1")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("user deleted", func(t *testing.T) {
		f := newReconcilerFixture()
		require.NoError(t, f.deliver(t, EventUserCreated, userCreatedData))

		require.NoError(t, f.deliver(t, EventUserDeleted, `{"id":"usr_1"}`))

		_, err := f.users.GetByClerkID(ctx, "usr_1")
		require.ErrorIs(t, err, store.ErrUserNotFound)

		// Redelivery of the deletion is also fine
		require.NoError(t, f.deliver(t, EventUserDeleted, `{"id":"usr_1"}`))
	})
}

func TestReconciler_OrganizationEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("organization created with empty membership", func(t *testing.T) {
		f := newReconcilerFixture()

		require.NoError(t, f.deliver(t, EventOrganizationCreated, orgCreatedData))

		org, err := f.orgs.GetByClerkID(ctx, "org_1")
		require.NoError(t, err)
		require.Equal(t, "Acme", org.Name)
		require.Equal(t, "acme", org.Slug)
		require.Equal(t, "https://img.example.com/acme.png", org.LogoURL)
		require.Empty(t, org.MemberIDs)
		require.Empty(t, org.AdminIDs)
	})

	t.Run("organization updated", func(t *testing.T) {
		f := newReconcilerFixture()
		require.NoError(t, f.deliver(t, EventOrganizationCreated, orgCreatedData))

		require.NoError(t, f.deliver(t, EventOrganizationUpdated, `{
			"id": "org_1",
			"name": "Acme Corp",
			"slug": "acme-corp",
			"logo_url": "https://img.example.com/acme-corp.png"
		}`))

		org, err := f.orgs.GetByClerkID(ctx, "org_1")
		require.NoError(t, err)
		require.Equal(t, "Acme Corp", org.Name)
		require.Equal(t, "acme-corp", org.Slug)
	})

	t.Run("organization deleted for unknown record succeeds", func(t *testing.T) {
		f := newReconcilerFixture()

		require.NoError(t, f.deliver(t, EventOrganizationDeleted, `{"id":"org_missing"}`))
	})
}

func TestReconciler_MembershipEvents(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*reconcilerFixture, *models.User, *models.Organization) {
		t.Helper()
		f := newReconcilerFixture()
		require.NoError(t, f.deliver(t, EventUserCreated, userCreatedData))
		require.NoError(t, f.deliver(t, EventOrganizationCreated, orgCreatedData))

		user, err := f.users.GetByClerkID(ctx, "usr_1")
		require.NoError(t, err)
		org, err := f.orgs.GetByClerkID(ctx, "org_1")
		require.NoError(t, err)
		return f, user, org
	}

	t.Run("membership created links both sides", func(t *testing.T) {
		f, user, org := seed(t)

		require.NoError(t, f.deliver(t, EventMembershipCreated, membershipEventData("usr_1", "org_1", "basic_member")))

		orgAfter, err := f.orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.True(t, orgAfter.HasMember(user.UserID))
		require.False(t, orgAfter.HasAdmin(user.UserID))

		userAfter, err := f.users.Get(ctx, user.UserID)
		require.NoError(t, err)
		require.True(t, userAfter.MemberOf(org.OrgID))
		require.NotNil(t, userAfter.CurrentOrganizationID)
		require.Equal(t, org.OrgID, *userAfter.CurrentOrganizationID)
	})

	t.Run("admin membership adds to both sets", func(t *testing.T) {
		f, user, org := seed(t)

		require.NoError(t, f.deliver(t, EventMembershipCreated, membershipEventData("usr_1", "org_1", "org:admin")))

		orgAfter, err := f.orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.True(t, orgAfter.HasMember(user.UserID))
		require.True(t, orgAfter.HasAdmin(user.UserID))
	})

	t.Run("membership created redelivery converges", func(t *testing.T) {
		f, user, org := seed(t)

		data := membershipEventData("usr_1", "org_1", "admin")
		require.NoError(t, f.deliver(t, EventMembershipCreated, data))
		require.NoError(t, f.deliver(t, EventMembershipCreated, data))

		orgAfter, err := f.orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.Len(t, orgAfter.MemberIDs, 1)
		require.Len(t, orgAfter.AdminIDs, 1)

		userAfter, err := f.users.Get(ctx, user.UserID)
		require.NoError(t, err)
		require.Len(t, userAfter.OrganizationIDs, 1)
	})

	t.Run("membership created with unknown user fails leaving no partial state", func(t *testing.T) {
		f := newReconcilerFixture()
		require.NoError(t, f.deliver(t, EventOrganizationCreated, orgCreatedData))

		err := f.deliver(t, EventMembershipCreated, membershipEventData("usr_missing", "org_1", "basic_member"))
		require.ErrorIs(t, err, ErrMissingReferencedEntity)

		org, err := f.orgs.GetByClerkID(ctx, "org_1")
		require.NoError(t, err)
		require.Empty(t, org.MemberIDs)
	})

	t.Run("membership created with unknown organization fails", func(t *testing.T) {
		f := newReconcilerFixture()
		require.NoError(t, f.deliver(t, EventUserCreated, userCreatedData))

		err := f.deliver(t, EventMembershipCreated, membershipEventData("usr_1", "org_missing", "basic_member"))
		require.ErrorIs(t, err, ErrMissingReferencedEntity)
	})

	t.Run("membership updated heals missed creation", func(t *testing.T) {
		f, user, org := seed(t)

		require.NoError(t, f.deliver(t, EventMembershipUpdated, membershipEventData("usr_1", "org_1", "basic_member")))

		orgAfter, err := f.orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.True(t, orgAfter.HasMember(user.UserID))

		userAfter, err := f.users.Get(ctx, user.UserID)
		require.NoError(t, err)
		require.True(t, userAfter.MemberOf(org.OrgID))
	})

	t.Run("membership updated promotes and demotes", func(t *testing.T) {
		f, user, org := seed(t)
		require.NoError(t, f.deliver(t, EventMembershipCreated, membershipEventData("usr_1", "org_1", "basic_member")))

		require.NoError(t, f.deliver(t, EventMembershipUpdated, membershipEventData("usr_1", "org_1", "admin")))
		orgAfter, err := f.orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.True(t, orgAfter.HasAdmin(user.UserID))

		require.NoError(t, f.deliver(t, EventMembershipUpdated, membershipEventData("usr_1", "org_1", "basic_member")))
		orgAfter, err = f.orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.False(t, orgAfter.HasAdmin(user.UserID))
		require.True(t, orgAfter.HasMember(user.UserID))
	})

	t.Run("membership deleted unlinks both sides", func(t *testing.T) {
		f, user, org := seed(t)
		require.NoError(t, f.deliver(t, EventMembershipCreated, membershipEventData("usr_1", "org_1", "admin")))

		require.NoError(t, f.deliver(t, EventMembershipDeleted, membershipEventData("usr_1", "org_1", "admin")))

		orgAfter, err := f.orgs.Get(ctx, org.OrgID)
		require.NoError(t, err)
		require.False(t, orgAfter.HasMember(user.UserID))
		require.False(t, orgAfter.HasAdmin(user.UserID))

		userAfter, err := f.users.Get(ctx, user.UserID)
		require.NoError(t, err)
		require.False(t, userAfter.MemberOf(org.OrgID))
		require.Nil(t, userAfter.CurrentOrganizationID)
	})

	t.Run("membership deleted tolerates missing entities", func(t *testing.T) {
		f := newReconcilerFixture()

		require.NoError(t, f.deliver(t, EventMembershipDeleted, membershipEventData("usr_missing", "org_missing", "basic_member")))
	})
}

// TestReconciler_InvariantsAfterEventSequence applies a mixed delivery
// sequence, with redeliveries and misordering, then checks that membership
// links are bidirectional and every admin is also a member.
func TestReconciler_InvariantsAfterEventSequence(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture()

	secondUser := `{
		"id": "usr_2",
		"first_name": "Sam",
		"last_name": "Lee",
		"email_addresses": [{"id": "eml_3", "email_address": "sam@example.com"}]
	}`
	secondOrg := `{"id": "org_2", "name": "Globex", "slug": "globex"}`

	deliveries := []struct {
		eventType string
		data      string
		fails     bool
	}{
		// Membership arrives before its organization, fails, then the
		// provider redelivers after the organization lands
		{EventUserCreated, userCreatedData, false},
		{EventMembershipCreated, membershipEventData("usr_1", "org_1", "admin"), true},
		{EventOrganizationCreated, orgCreatedData, false},
		{EventMembershipCreated, membershipEventData("usr_1", "org_1", "admin"), false},
		{EventUserCreated, secondUser, false},
		{EventOrganizationCreated, secondOrg, false},
		{EventMembershipCreated, membershipEventData("usr_2", "org_1", "basic_member"), false},
		{EventMembershipUpdated, membershipEventData("usr_2", "org_2", "org:admin"), false},
		{EventMembershipCreated, membershipEventData("usr_2", "org_1", "basic_member"), false},
		{EventMembershipUpdated, membershipEventData("usr_1", "org_1", "basic_member"), false},
		{EventMembershipDeleted, membershipEventData("usr_2", "org_1", "basic_member"), false},
		{EventUserCreated, userCreatedData, false},
	}

	for _, d := range deliveries {
		err := f.deliver(t, d.eventType, d.data)
		if d.fails {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
	}

	users := map[string]*models.User{}
	for _, clerkID := range []string{"usr_1", "usr_2"} {
		user, err := f.users.GetByClerkID(ctx, clerkID)
		require.NoError(t, err)
		users[clerkID] = user
	}

	for _, clerkID := range []string{"org_1", "org_2"} {
		org, err := f.orgs.GetByClerkID(ctx, clerkID)
		require.NoError(t, err)

		// Admins are always members
		for _, adminID := range org.AdminIDs {
			require.True(t, org.HasMember(adminID), "admin %s of %s is not a member", adminID, clerkID)
		}

		// Membership links agree from both sides
		for _, user := range users {
			require.Equal(t, org.HasMember(user.UserID), user.MemberOf(org.OrgID),
				"membership of %s in %s disagrees between sides", user.ClerkID, clerkID)
		}
	}

	// The final picture: usr_1 is a plain member of org_1 after demotion,
	// usr_2 only belongs to org_2 where the update healed the missed
	// creation and promoted them.
	org1, err := f.orgs.GetByClerkID(ctx, "org_1")
	require.NoError(t, err)
	require.True(t, org1.HasMember(users["usr_1"].UserID))
	require.False(t, org1.HasAdmin(users["usr_1"].UserID))
	require.False(t, org1.HasMember(users["usr_2"].UserID))

	org2, err := f.orgs.GetByClerkID(ctx, "org_2")
	require.NoError(t, err)
	require.True(t, org2.HasAdmin(users["usr_2"].UserID))
}

func TestReconciler_InvitationEvents(t *testing.T) {
	f := newReconcilerFixture()

	for _, eventType := range []string{EventInvitationCreated, EventInvitationAccepted, EventInvitationRevoked} {
		t.Run(eventType, func(t *testing.T) {
			err := f.deliver(t, eventType, `{
				"id": "inv_1",
				"email_address": "jane@example.com",
				"organization_id": "org_1",
				"role": "basic_member",
				"status": "pending"
			}`)
			require.NoError(t, err)
		})
	}

	t.Run("invitation for a mirrored address mutates nothing", func(t *testing.T) {
		require.NoError(t, f.deliver(t, EventUserCreated, userCreatedData))
		before, err := f.users.GetByClerkID(context.Background(), "usr_1")
		require.NoError(t, err)

		require.NoError(t, f.deliver(t, EventInvitationAccepted, `{
			"id": "inv_2",
			"email_address": "jane@example.com",
			"organization_id": "org_1",
			"role": "basic_member",
			"status": "accepted"
		}`))

		after, err := f.users.GetByClerkID(context.Background(), "usr_1")
		require.NoError(t, err)
		require.Equal(t, before.UpdatedAt, after.UpdatedAt)
		require.Empty(t, after.OrganizationIDs)
	})
}
