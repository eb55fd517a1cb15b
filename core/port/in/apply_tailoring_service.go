package in

import (
	"context"

	"apply_server/core/domain"
)

// TailoringService produces a customized CV and cover letter for one posting.
type TailoringService interface {
	// Tailor runs CV customization and cover letter generation concurrently
	// and computes the fit score. Quota for cv_generations and cover_letters
	// is tracked per artifact.
	Tailor(ctx context.Context, req *TailorRequest) (*domain.TailoringResult, error)

	// FitScore computes the skill-overlap score without calling the LLM.
	FitScore(cvSkills, requiredSkills []string) float64
}

// TailorRequest selects the source CV and the target job.
type TailorRequest struct {
	UserID string                 `json:"user_id"`
	CVID   string                 `json:"cv_id"`
	JobID  string                 `json:"job_id"`
	Tone   domain.CoverLetterTone `json:"tone,omitempty"`
}

// ClassificationService analyzes one inbound message.
type ClassificationService interface {
	Analyze(ctx context.Context, req *AnalyzeRequest) (*domain.AnalysisResult, error)
}

// AnalyzeRequest is one message to classify.
type AnalyzeRequest struct {
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	Sender        string `json:"sender"`
	ApplicationID string `json:"application_id,omitempty"`
	UseLLM        bool   `json:"use_llm"`
}
