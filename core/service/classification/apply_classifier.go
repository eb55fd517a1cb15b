// Package classification implements the inbound email response classifier.
package classification

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/logger"
)

// =============================================================================
// Classifier
// =============================================================================

// Classifier maps (subject, body, sender) to a category with confidence.
// A deterministic keyword pass runs first; the LLM pass runs only when the
// caller allows it and the deterministic confidence is below the escalation
// threshold.
type Classifier struct {
	llm out.LLMClient
	log *logger.Logger
}

var _ in.ClassificationService = (*Classifier)(nil)

func NewClassifier(llm out.LLMClient) *Classifier {
	return &Classifier{
		llm: llm,
		log: logger.WithComponent("classifier"),
	}
}

func (c *Classifier) Analyze(ctx context.Context, req *in.AnalyzeRequest) (*domain.AnalysisResult, error) {
	result := c.deterministicPass(req.Subject, req.Body)

	if req.UseLLM && result.Confidence < domain.LLMEscalationThreshold && c.llm != nil {
		if llmResult, err := c.llmPass(ctx, req); err == nil {
			result = llmResult
		} else {
			c.log.Warn("llm classification failed, keeping deterministic result: app=%s err=%v",
				req.ApplicationID, err)
		}
	}

	if status, ok := domain.SuggestedStatusFor(result.Category); ok {
		result.SuggestedStatus = &status
	}
	result.RequiresAction = requiresActionFor[result.Category]
	if result.RequiresAction {
		result.ActionType = actionTypeFor[result.Category]
	}
	return result, nil
}

// =============================================================================
// Deterministic pass
// =============================================================================

// deterministicPass scores each category's keyword dictionary against the
// normalized subject+body and returns the best category with a confidence
// derived from match density. Byte-identical inputs yield byte-identical
// results.
func (c *Classifier) deterministicPass(subject, body string) *domain.AnalysisResult {
	text := normalize(subject + " " + body)
	tokens := len(strings.Fields(text))
	if tokens == 0 {
		return &domain.AnalysisResult{
			Category:   domain.CategoryUnknown,
			Confidence: 0,
		}
	}

	best := domain.CategoryUnknown
	bestScore := 0.0
	var bestMatched []string

	for _, category := range domain.AllCategories {
		keywords, ok := categoryKeywords[category]
		if !ok {
			continue
		}
		score := 0.0
		var matched []string
		for _, kw := range keywords {
			if strings.Contains(text, kw.phrase) {
				score += kw.weight
				matched = append(matched, kw.phrase)
			}
		}
		if score > bestScore {
			best = category
			bestScore = score
			bestMatched = matched
		}
	}

	// Density: summed weights over token count, clipped to [0,1].
	confidence := bestScore / float64(tokens)
	if confidence > 1 {
		confidence = 1
	}
	// Short messages with strong matches still deserve a floor above the
	// density alone; scale by the absolute score.
	if bestScore >= 6.0 && confidence < 0.8 {
		confidence = 0.8
	} else if bestScore >= 3.5 && confidence < 0.65 {
		confidence = 0.65
	}

	result := &domain.AnalysisResult{
		Category:        best,
		Confidence:      confidence,
		KeywordsMatched: bestMatched,
	}
	result.ExtractedInfo = extractSlots(subject + " " + body)
	return result
}

var nonWordRe = regexp.MustCompile(`[^a-z0-9\s]`)

func normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWordRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// =============================================================================
// Slot extraction
// =============================================================================

var (
	dateRe = regexp.MustCompile(`(?i)\b(?:(?:mon|tues?|wednes|thurs?|fri|satur|sun)day|jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+\d{1,2}(?:st|nd|rd|th)?\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)
	timeRe = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:am|pm)\b|\b\d{1,2}:\d{2}\b`)
	locRe  = regexp.MustCompile(`(?i)(?:location|address|office)[:\s]+([^\n.]{3,60})`)
)

func extractSlots(text string) domain.ExtractedInfo {
	info := domain.ExtractedInfo{
		Dates: dedupe(dateRe.FindAllString(text, 5)),
		Times: dedupe(timeRe.FindAllString(text, 5)),
	}
	if m := locRe.FindStringSubmatch(text); len(m) > 1 {
		info.Location = strings.TrimSpace(m[1])
	}
	return info
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// LLM pass
// =============================================================================

const classifySystemPrompt = `You classify job application response emails.
Respond with a JSON object:
{
  "category": one of ["interview_invitation","rejection","offer","information_request","follow_up_required","acknowledgment","scheduling_request","unknown"],
  "confidence": number between 0 and 1,
  "dates": array of date strings mentioned (may be empty),
  "times": array of time strings mentioned (may be empty),
  "location": string or ""
}`

type llmClassification struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Dates      []string `json:"dates"`
	Times      []string `json:"times"`
	Location   string   `json:"location"`
}

func (c *Classifier) llmPass(ctx context.Context, req *in.AnalyzeRequest) (*domain.AnalysisResult, error) {
	prompt := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", req.Sender, req.Subject, truncate(req.Body, 4000))

	var parsed llmClassification
	if err := c.llm.CompleteJSON(ctx, "classifier", classifySystemPrompt, prompt, &parsed); err != nil {
		return nil, err
	}

	category := domain.EmailCategory(parsed.Category)
	if !validCategory(category) {
		return nil, fmt.Errorf("model returned unknown category %q", parsed.Category)
	}
	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &domain.AnalysisResult{
		Category:   category,
		Confidence: confidence,
		ExtractedInfo: domain.ExtractedInfo{
			Dates:    parsed.Dates,
			Times:    parsed.Times,
			Location: parsed.Location,
		},
		LLMUsed: true,
	}, nil
}

func validCategory(c domain.EmailCategory) bool {
	for _, v := range domain.AllCategories {
		if v == c {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
