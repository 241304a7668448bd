package webhook

import "encoding/json"

// Event is the provider's webhook envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event types dispatched by the reconciler. Unrecognized types are accepted
// and ignored.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"

	EventOrganizationCreated = "organization.created"
	EventOrganizationUpdated = "organization.updated"
	EventOrganizationDeleted = "organization.deleted"

	EventMembershipCreated = "organizationMembership.created"
	EventMembershipUpdated = "organizationMembership.updated"
	EventMembershipDeleted = "organizationMembership.deleted"

	EventInvitationCreated  = "organizationInvitation.created"
	EventInvitationAccepted = "organizationInvitation.accepted"
	EventInvitationRevoked  = "organizationInvitation.revoked"
)

// userData is the user payload shape shared by user.* events.
type userData struct {
	ID                    string         `json:"id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	ProfileImageURL       string         `json:"profile_image_url"`
	ImageURL              string         `json:"image_url"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// primaryEmail returns the address matching primary_email_address_id, falling
// back to the first listed address.
func (u *userData) primaryEmail() string {
	for _, addr := range u.EmailAddresses {
		if addr.ID == u.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// avatarURL prefers the legacy profile_image_url field and falls back to the
// newer image_url.
func (u *userData) avatarURL() string {
	if u.ProfileImageURL != "" {
		return u.ProfileImageURL
	}
	return u.ImageURL
}

// organizationData is the organization payload shape shared by
// organization.* events.
type organizationData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	LogoURL  string `json:"logo_url"`
	ImageURL string `json:"image_url"`
}

func (o *organizationData) logoURL() string {
	if o.LogoURL != "" {
		return o.LogoURL
	}
	return o.ImageURL
}

// membershipData is the payload shape shared by organizationMembership.*
// events.
type membershipData struct {
	Role           string           `json:"role"`
	Organization   organizationData `json:"organization"`
	PublicUserData struct {
		UserID string `json:"user_id"`
	} `json:"public_user_data"`
}

// isAdminRole reports whether the membership role grants admin rights.
func (m *membershipData) isAdminRole() bool {
	return m.Role == "admin" || m.Role == "org:admin"
}

// invitationData is the payload shape shared by organizationInvitation.*
// events. Invitations are tracked in logs only; the membership events carry
// the state changes.
type invitationData struct {
	ID             string `json:"id"`
	EmailAddress   string `json:"email_address"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	Status         string `json:"status"`
}
