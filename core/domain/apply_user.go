package domain

import "time"

// =============================================================================
// User - account, profile, credentials
// =============================================================================

// UserProfile holds display and autofill fields.
type UserProfile struct {
	FirstName string `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  string `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Phone     string `bson:"phone,omitempty" json:"phone,omitempty"`
	Location  string `bson:"location,omitempty" json:"location,omitempty"`
	LinkedIn  string `bson:"linkedin,omitempty" json:"linkedin,omitempty"`
	Website   string `bson:"website,omitempty" json:"website,omitempty"`
}

// FullName joins the profile name parts, dropping empties.
func (p *UserProfile) FullName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}

// MailboxCredentials is the refreshable OAuth token pair for the user's
// connected mailbox. Refresh is a write and must hold the per-user mutex.
type MailboxCredentials struct {
	Provider     string    `bson:"provider" json:"provider"` // gmail
	EmailAddress string    `bson:"email_address" json:"email_address"`
	AccessToken  string    `bson:"access_token" json:"-"`
	RefreshToken string    `bson:"refresh_token" json:"-"`
	TokenExpiry  time.Time `bson:"token_expiry" json:"token_expiry"`
	Scopes       []string  `bson:"scopes,omitempty" json:"scopes,omitempty"`
	ConnectedAt  time.Time `bson:"connected_at" json:"connected_at"`
}

// PortalCredential is one saved login for a job portal domain. Appended when
// the browser worker registers an account during a submission.
type PortalCredential struct {
	PortalName string    `bson:"portal_name" json:"portal_name"`
	Domain     string    `bson:"domain" json:"domain"`
	Username   string    `bson:"username" json:"username"`
	Secret     string    `bson:"secret" json:"-"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// NotificationPreferences gates the email channel per notification type.
type NotificationPreferences struct {
	EmailEnabled  bool            `bson:"email_enabled" json:"email_enabled"`
	MutedTypes    []string        `bson:"muted_types,omitempty" json:"muted_types,omitempty"`
}

// AllowsEmail reports whether the email channel is open for the given type.
func (p *NotificationPreferences) AllowsEmail(notifType string) bool {
	if !p.EmailEnabled {
		return false
	}
	for _, t := range p.MutedTypes {
		if t == notifType {
			return false
		}
	}
	return true
}

type User struct {
	ID           string `bson:"_id,omitempty" json:"id"`
	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password_hash" json:"-"`

	EmailVerified bool   `bson:"email_verified" json:"email_verified"`
	VerifyToken   string `bson:"verify_token,omitempty" json:"-"`
	ResetToken    string `bson:"reset_token,omitempty" json:"-"`
	ResetExpiry   *time.Time `bson:"reset_expiry,omitempty" json:"-"`

	Profile UserProfile `bson:"profile" json:"profile"`

	PlanID string `bson:"plan_id" json:"plan_id"`

	Mailbox           *MailboxCredentials     `bson:"mailbox,omitempty" json:"mailbox,omitempty"`
	PortalCredentials []PortalCredential      `bson:"portal_credentials,omitempty" json:"portal_credentials,omitempty"`
	Notifications     NotificationPreferences `bson:"notification_preferences" json:"notification_preferences"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasMailbox reports whether a connected mailbox credential is present.
func (u *User) HasMailbox() bool {
	return u.Mailbox != nil && u.Mailbox.RefreshToken != ""
}

// PortalCredentialFor returns the saved credential matching the domain.
func (u *User) PortalCredentialFor(domain string) *PortalCredential {
	for i := range u.PortalCredentials {
		if u.PortalCredentials[i].Domain == domain {
			return &u.PortalCredentials[i]
		}
	}
	return nil
}
