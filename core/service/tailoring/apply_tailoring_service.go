// Package tailoring customizes CVs and generates cover letters for postings.
package tailoring

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/logger"
)

// =============================================================================
// Tailoring Service
// =============================================================================

// Service runs CV customization and cover letter generation concurrently and
// computes the fit score on the customized output.
type Service struct {
	llm   out.LLMClient
	cvs   out.CVRepository
	jobs  out.JobRepository
	quota in.QuotaService
	log   *logger.Logger
}

var _ in.TailoringService = (*Service)(nil)

type Deps struct {
	LLM   out.LLMClient
	CVs   out.CVRepository
	Jobs  out.JobRepository
	Quota in.QuotaService
}

func NewService(deps *Deps) *Service {
	return &Service{
		llm:   deps.LLM,
		cvs:   deps.CVs,
		jobs:  deps.Jobs,
		quota: deps.Quota,
		log:   logger.WithComponent("tailoring"),
	}
}

func (s *Service) Tailor(ctx context.Context, req *in.TailorRequest) (*domain.TailoringResult, error) {
	cv, err := s.cvs.FindCV(ctx, req.UserID, req.CVID)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.FindByID(ctx, req.UserID, req.JobID)
	if err != nil {
		return nil, err
	}

	// Each tailoring run bills its own generation; no idempotency key.
	if err := s.quota.Track(ctx, req.UserID, domain.UsageCVGeneration, 1, "",
		map[string]any{"job_id": req.JobID}); err != nil {
		return nil, err
	}
	if err := s.quota.Track(ctx, req.UserID, domain.UsageCoverLetter, 1, "",
		map[string]any{"job_id": req.JobID}); err != nil {
		return nil, err
	}

	tone := req.Tone
	if tone == "" {
		tone = domain.ToneProfessional
	}

	var (
		wg        sync.WaitGroup
		customCV  *domain.CustomizedCV
		letter    *domain.CoverLetter
		letterErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		customCV = s.customizeCV(ctx, cv, job)
	}()
	go func() {
		defer wg.Done()
		letter, letterErr = s.generateCoverLetter(ctx, cv, job, tone)
	}()
	wg.Wait()

	if letterErr != nil {
		return nil, letterErr
	}

	fit := s.FitScore(customCV.Skills.Normalize(), job.RequiredSkills)
	customCV.FitScore = fit

	saved, err := s.cvs.SaveCustomizedCV(ctx, customCV)
	if err != nil {
		return nil, err
	}
	letter.UserID = req.UserID
	letter.JobID = req.JobID
	letter.SourceCVID = req.CVID
	savedLetter, err := s.cvs.SaveCoverLetter(ctx, letter)
	if err != nil {
		return nil, err
	}

	return &domain.TailoringResult{
		CV:          saved,
		CoverLetter: savedLetter,
		FitScore:    fit,
	}, nil
}

// =============================================================================
// CV customization
// =============================================================================

const customizeSystemPrompt = `You rewrite CVs to target one job posting.
Rules: reorder experiences by relevance, emphasize skills matching the posting,
inject ATS keywords from the posting, NEVER fabricate experience or skills.
Respond with a JSON object mirroring the input CV schema, plus:
"ats_keywords": array of strings, and per experience entry "relevance_score": 0-10.`

// customizedPayload mirrors the CV schema in the model response.
type customizedPayload struct {
	PersonalInfo domain.PersonalInfo      `json:"personal_info"`
	Experience   []domain.ExperienceEntry `json:"experience"`
	Education    []domain.EducationEntry  `json:"education"`
	Skills       domain.SkillSet          `json:"skills"`
	ATSKeywords  []string                 `json:"ats_keywords"`
}

// customizeCV asks the model to rework the CV. Malformed output falls back
// to the original document.
func (s *Service) customizeCV(ctx context.Context, cv *domain.ParsedCV, job *domain.Job) *domain.CustomizedCV {
	result := &domain.CustomizedCV{
		ParsedCV:   *cv,
		SourceCVID: cv.ID,
		JobID:      job.ID,
	}
	result.ID = ""

	cvJSON, err := json.Marshal(cv)
	if err != nil {
		return result
	}
	prompt := fmt.Sprintf("Job: %s at %s\nRequired skills: %s\nDescription:\n%s\n\nCV:\n%s",
		job.Title, job.CompanyName,
		strings.Join(job.RequiredSkills, ", "),
		truncate(job.Description, 3000),
		string(cvJSON))

	var payload customizedPayload
	if err := s.llm.CompleteJSON(ctx, "tailoring.cv", customizeSystemPrompt, prompt, &payload); err != nil {
		s.log.Warn("cv customization failed, using original: cv=%s err=%v", cv.ID, err)
		return result
	}
	if len(payload.Experience) == 0 && len(cv.Experience) > 0 {
		// Model dropped the work history; distrust the whole response.
		return result
	}

	result.PersonalInfo = payload.PersonalInfo
	result.Experience = payload.Experience
	result.Education = payload.Education
	result.Skills = payload.Skills
	result.ATSKeywords = payload.ATSKeywords
	result.LLMGenerated = true
	return result
}

// =============================================================================
// Cover letter
// =============================================================================

const coverLetterSystemPrompt = `You write cover letters for job applications.
Length 250-350 words. Open with a specific, non-templated hook about the
company or role. Close with a confident call to action. Tone: %s.
Respond with a JSON object:
{"greeting": string, "paragraphs": array of strings, "full_text": string}`

type coverLetterPayload struct {
	Greeting   string   `json:"greeting"`
	Paragraphs []string `json:"paragraphs"`
	FullText   string   `json:"full_text"`
}

func (s *Service) generateCoverLetter(ctx context.Context, cv *domain.ParsedCV, job *domain.Job, tone domain.CoverLetterTone) (*domain.CoverLetter, error) {
	prompt := fmt.Sprintf("Job: %s at %s\nDescription:\n%s\n\nCandidate summary: %s\nSkills: %s\nMost recent role: %s",
		job.Title, job.CompanyName,
		truncate(job.Description, 3000),
		cv.PersonalInfo.Summary,
		strings.Join(cv.Skills.Normalize(), ", "),
		recentRole(cv))

	system := fmt.Sprintf(coverLetterSystemPrompt, tone)
	var payload coverLetterPayload
	if err := s.llm.CompleteJSON(ctx, "tailoring.letter", system, prompt, &payload); err == nil && payload.FullText != "" {
		return &domain.CoverLetter{
			Tone:         tone,
			Greeting:     payload.Greeting,
			Paragraphs:   payload.Paragraphs,
			FullText:     payload.FullText,
			LLMGenerated: true,
		}, nil
	} else if err != nil {
		s.log.Warn("cover letter generation failed, using template: job=%s err=%v", job.ID, err)
	}

	return &domain.CoverLetter{
		Tone:     tone,
		FullText: templateLetter(cv, job),
	}, nil
}

// templateLetter is the fallback when the model is unavailable.
func templateLetter(cv *domain.ParsedCV, job *domain.Job) string {
	name := cv.PersonalInfo.Name
	if name == "" {
		name = "the applicant"
	}
	return fmt.Sprintf(
		"Dear Hiring Team,\n\n"+
			"I am writing to apply for the %s position at %s. "+
			"My background in %s aligns closely with the role, and I would welcome "+
			"the opportunity to contribute to your team.\n\n"+
			"I look forward to discussing how my experience can support %s.\n\n"+
			"Sincerely,\n%s",
		job.Title, job.CompanyName,
		strings.Join(firstN(cv.Skills.Normalize(), 3), ", "),
		job.CompanyName, name)
}

func recentRole(cv *domain.ParsedCV) string {
	if len(cv.Experience) == 0 {
		return ""
	}
	e := cv.Experience[0]
	return e.Title + " at " + e.Company
}

// =============================================================================
// Fit score
// =============================================================================

// FitScore is the bucketed Jaccard similarity of normalized skill sets.
// Empty requirements score 0.75; no overlap scores 0.5; otherwise the
// intersection-over-union plus a 0.2 overlap bonus, capped at 1.0.
func (s *Service) FitScore(cvSkills, requiredSkills []string) float64 {
	required := normalizeSet(requiredSkills)
	if len(required) == 0 {
		return 0.75
	}
	have := normalizeSet(cvSkills)

	intersection := 0
	for skill := range required {
		if have[skill] {
			intersection++
		}
	}
	if intersection == 0 {
		return 0.5
	}

	union := len(have) + len(required) - intersection
	score := float64(intersection)/float64(union) + 0.2
	if score > 1 {
		score = 1
	}
	return score
}

func normalizeSet(skills []string) map[string]bool {
	set := make(map[string]bool, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = true
		}
	}
	return set
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
