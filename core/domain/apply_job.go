package domain

import "time"

// =============================================================================
// Job - a posting a user can apply to
// =============================================================================

// JobStatus tracks whether a posting is still worth applying to.
type JobStatus string

const (
	JobActive  JobStatus = "active"
	JobExpired JobStatus = "expired"
	JobClosed  JobStatus = "closed"
)

// SalaryRange is an optional compensation band.
type SalaryRange struct {
	Min      int    `bson:"min,omitempty" json:"min,omitempty"`
	Max      int    `bson:"max,omitempty" json:"max,omitempty"`
	Currency string `bson:"currency,omitempty" json:"currency,omitempty"`
	Period   string `bson:"period,omitempty" json:"period,omitempty"` // yearly, monthly, hourly
}

// CompanyContact is an optional recruiter or HR contact attached to a posting.
type CompanyContact struct {
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`
}

type Job struct {
	ID     string `bson:"_id,omitempty" json:"id"`
	UserID string `bson:"user_id" json:"user_id"`

	Title       string `bson:"title" json:"title"`
	CompanyName string `bson:"company_name" json:"company_name"`
	Location    string `bson:"location,omitempty" json:"location,omitempty"`
	Remote      bool   `bson:"remote,omitempty" json:"remote,omitempty"`

	Description    string   `bson:"description,omitempty" json:"description,omitempty"`
	Requirements   []string `bson:"requirements,omitempty" json:"requirements,omitempty"`
	RequiredSkills []string `bson:"required_skills,omitempty" json:"required_skills,omitempty"`

	Salary  *SalaryRange    `bson:"salary,omitempty" json:"salary,omitempty"`
	Contact *CompanyContact `bson:"contact,omitempty" json:"contact,omitempty"`

	// Submission channels
	ApplicationEmail string `bson:"application_email,omitempty" json:"application_email,omitempty"`
	ApplicationURL   string `bson:"application_url,omitempty" json:"application_url,omitempty"`

	// Where the posting came from (board tag, e.g. "remoteok", "linkedin")
	Source    string `bson:"source,omitempty" json:"source,omitempty"`
	SourceURL string `bson:"source_url,omitempty" json:"source_url,omitempty"`

	Status    JobStatus  `bson:"status" json:"status"`
	PostedAt  *time.Time `bson:"posted_at,omitempty" json:"posted_at,omitempty"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ContactEmail returns the best outbound address for the email path:
// the posting's application email, else the nested company contact.
func (j *Job) ContactEmail() string {
	if j.ApplicationEmail != "" {
		return j.ApplicationEmail
	}
	if j.Contact != nil {
		return j.Contact.Email
	}
	return ""
}
