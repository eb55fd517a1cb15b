package domain

import (
	"sort"
	"time"
)

// =============================================================================
// ParsedCV - the closed record produced from an uploaded CV
// =============================================================================

// PersonalInfo carries the contact block of a CV.
type PersonalInfo struct {
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	Email    string `bson:"email,omitempty" json:"email,omitempty"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
	Location string `bson:"location,omitempty" json:"location,omitempty"`
	LinkedIn string `bson:"linkedin,omitempty" json:"linkedin,omitempty"`
	Website  string `bson:"website,omitempty" json:"website,omitempty"`
	Summary  string `bson:"summary,omitempty" json:"summary,omitempty"`
}

// ExperienceEntry is one role in the work history.
type ExperienceEntry struct {
	Title       string   `bson:"title" json:"title"`
	Company     string   `bson:"company" json:"company"`
	StartDate   string   `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate     string   `bson:"end_date,omitempty" json:"end_date,omitempty"`
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	Highlights  []string `bson:"highlights,omitempty" json:"highlights,omitempty"`

	// Set by the tailoring pipeline, 0-10.
	RelevanceScore int `bson:"relevance_score,omitempty" json:"relevance_score,omitempty"`
}

// EducationEntry is one degree or certification.
type EducationEntry struct {
	Institution string `bson:"institution" json:"institution"`
	Degree      string `bson:"degree,omitempty" json:"degree,omitempty"`
	Field       string `bson:"field,omitempty" json:"field,omitempty"`
	StartDate   string `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate     string `bson:"end_date,omitempty" json:"end_date,omitempty"`
	GPA         string `bson:"gpa,omitempty" json:"gpa,omitempty"`
}

// SkillSet holds skills in either flat or categorized form. Source documents
// carry one or the other; Normalize flattens for matching.
type SkillSet struct {
	Flat      []string            `bson:"flat,omitempty" json:"flat,omitempty"`
	Technical []string            `bson:"technical,omitempty" json:"technical,omitempty"`
	Soft      []string            `bson:"soft,omitempty" json:"soft,omitempty"`
	Languages []string            `bson:"languages,omitempty" json:"languages,omitempty"`
	Other     map[string][]string `bson:"other,omitempty" json:"other,omitempty"`
}

// Normalize returns the deduplicated union of every variant as a sorted flat
// list.
func (s *SkillSet) Normalize() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(list []string) {
		for _, sk := range list {
			if sk == "" || seen[sk] {
				continue
			}
			seen[sk] = true
			out = append(out, sk)
		}
	}
	add(s.Flat)
	add(s.Technical)
	add(s.Soft)
	add(s.Languages)
	keys := make([]string, 0, len(s.Other))
	for k := range s.Other {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(s.Other[k])
	}
	return out
}

// ParsedCV is the structured form of an uploaded CV.
type ParsedCV struct {
	ID     string `bson:"_id,omitempty" json:"id"`
	UserID string `bson:"user_id" json:"user_id"`
	FileID string `bson:"file_id,omitempty" json:"file_id,omitempty"`
	Name   string `bson:"name,omitempty" json:"name,omitempty"`

	PersonalInfo PersonalInfo      `bson:"personal_info" json:"personal_info"`
	Experience   []ExperienceEntry `bson:"experience,omitempty" json:"experience,omitempty"`
	Education    []EducationEntry  `bson:"education,omitempty" json:"education,omitempty"`
	Skills       SkillSet          `bson:"skills" json:"skills"`
	Certifications []string        `bson:"certifications,omitempty" json:"certifications,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// =============================================================================
// Tailoring outputs
// =============================================================================

// CustomizedCV is a ParsedCV reworked toward one job posting.
type CustomizedCV struct {
	ParsedCV      `bson:",inline"`
	SourceCVID    string   `bson:"source_cv_id" json:"source_cv_id"`
	JobID         string   `bson:"job_id" json:"job_id"`
	ATSKeywords   []string `bson:"ats_keywords,omitempty" json:"ats_keywords,omitempty"`
	FitScore      float64  `bson:"fit_score" json:"fit_score"`
	LLMGenerated  bool     `bson:"llm_generated" json:"llm_generated"`
}

// CoverLetterTone selects the writing register for a generated letter.
type CoverLetterTone string

const (
	ToneProfessional   CoverLetterTone = "professional"
	ToneEnthusiastic   CoverLetterTone = "enthusiastic"
	ToneConversational CoverLetterTone = "conversational"
	ToneFormal         CoverLetterTone = "formal"
)

// CoverLetter is a generated letter for one application.
type CoverLetter struct {
	ID         string          `bson:"_id,omitempty" json:"id"`
	UserID     string          `bson:"user_id" json:"user_id"`
	JobID      string          `bson:"job_id" json:"job_id"`
	SourceCVID string          `bson:"source_cv_id,omitempty" json:"source_cv_id,omitempty"`
	Tone       CoverLetterTone `bson:"tone" json:"tone"`
	Greeting   string          `bson:"greeting,omitempty" json:"greeting,omitempty"`
	Paragraphs []string        `bson:"paragraphs,omitempty" json:"paragraphs,omitempty"`
	FullText   string          `bson:"full_text" json:"full_text"`
	LLMGenerated bool          `bson:"llm_generated" json:"llm_generated"`
	CreatedAt  time.Time       `bson:"created_at" json:"created_at"`
}

// IsSubstantial reports whether the letter is long enough to reuse as an
// outbound email body instead of generating a fresh one.
func (c *CoverLetter) IsSubstantial() bool {
	return c != nil && len(c.FullText) >= 200
}

// TailoringResult bundles the concurrent pipeline outputs.
type TailoringResult struct {
	CV          *CustomizedCV
	CoverLetter *CoverLetter
	FitScore    float64
}
