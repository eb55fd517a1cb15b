package classification

import (
	"context"
	"errors"
	"testing"

	"apply_server/core/domain"
	"apply_server/core/port/in"
)

// failingLLM fails the test if the classifier escalates.
type failingLLM struct {
	t      *testing.T
	called bool
}

func (f *failingLLM) Complete(ctx context.Context, caller, prompt string) (string, error) {
	f.called = true
	return "", errors.New("llm should not be called")
}

func (f *failingLLM) CompleteWithSystem(ctx context.Context, caller, system, prompt string) (string, error) {
	f.called = true
	return "", errors.New("llm should not be called")
}

func (f *failingLLM) CompleteJSON(ctx context.Context, caller, system, prompt string, out any) error {
	f.called = true
	return errors.New("llm should not be called")
}

func TestAnalyzeInterviewInvitationDeterministic(t *testing.T) {
	llm := &failingLLM{t: t}
	c := NewClassifier(llm)

	req := &in.AnalyzeRequest{
		Subject: "Interview invitation - Acme",
		Body:    "Please confirm your availability on Tuesday at 10am",
		Sender:  "recruiting@acme.com",
		UseLLM:  true,
	}
	result, err := c.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Category != domain.CategoryInterviewInvitation {
		t.Fatalf("category = %s, want %s", result.Category, domain.CategoryInterviewInvitation)
	}
	if result.Confidence < domain.LLMEscalationThreshold {
		t.Fatalf("confidence = %.2f, want >= %.2f", result.Confidence, domain.LLMEscalationThreshold)
	}
	if result.LLMUsed {
		t.Fatal("deterministic pass should not mark LLMUsed")
	}
	if llm.called {
		t.Fatal("llm must not be called above the escalation threshold")
	}
	if result.SuggestedStatus == nil || *result.SuggestedStatus != domain.StatusInterviewScheduled {
		t.Fatalf("suggested status = %v, want %s", result.SuggestedStatus, domain.StatusInterviewScheduled)
	}
}

func TestAnalyzeDeterminism(t *testing.T) {
	c := NewClassifier(nil)
	req := &in.AnalyzeRequest{
		Subject: "Update on your application",
		Body:    "Unfortunately we are not moving forward with other candidates. Best of luck.",
	}

	first, err := c.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first.Category != domain.CategoryRejection {
		t.Fatalf("category = %s, want %s", first.Category, domain.CategoryRejection)
	}

	for i := 0; i < 10; i++ {
		again, err := c.Analyze(context.Background(), req)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if again.Category != first.Category || again.Confidence != first.Confidence {
			t.Fatalf("run %d diverged: %s %.4f vs %s %.4f",
				i, again.Category, again.Confidence, first.Category, first.Confidence)
		}
	}
}

func TestAnalyzeCategories(t *testing.T) {
	c := NewClassifier(nil)
	cases := []struct {
		name    string
		subject string
		body    string
		want    domain.EmailCategory
	}{
		{
			name:    "acknowledgment",
			subject: "Application received",
			body:    "Thank you for applying. We received your application and will be in touch.",
			want:    domain.CategoryAcknowledgment,
		},
		{
			name:    "offer",
			subject: "Congratulations",
			body:    "We are pleased to offer you the role. Your offer letter and compensation package are attached.",
			want:    domain.CategoryOffer,
		},
		{
			name:    "rejection",
			subject: "Your application",
			body:    "We regret to inform you that the position has been filled.",
			want:    domain.CategoryRejection,
		},
		{
			name:    "empty message",
			subject: "",
			body:    "",
			want:    domain.CategoryUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := c.Analyze(context.Background(), &in.AnalyzeRequest{
				Subject: tc.subject,
				Body:    tc.body,
			})
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if result.Category != tc.want {
				t.Fatalf("category = %s, want %s", result.Category, tc.want)
			}
		})
	}
}

func TestExtractSlots(t *testing.T) {
	info := extractSlots("Interview on March 3rd at 2:30 pm. Location: 12 Main Street, floor 4")
	if len(info.Dates) == 0 || info.Dates[0] != "March 3rd" {
		t.Fatalf("dates = %v, want [March 3rd]", info.Dates)
	}
	if len(info.Times) == 0 {
		t.Fatalf("times = %v, want at least one", info.Times)
	}
	if info.Location == "" {
		t.Fatal("location not extracted")
	}
}

func TestNormalize(t *testing.T) {
	got := normalize("  RE: Interview - Acme, Inc.!  ")
	want := "re interview acme inc"
	if got != want {
		t.Fatalf("normalize = %q, want %q", got, want)
	}
}
