package classification

import "apply_server/core/domain"

// =============================================================================
// Keyword dictionaries
// =============================================================================

// keywordWeight pairs a phrase with its score contribution. Phrases are
// matched against the normalized subject+body.
type keywordWeight struct {
	phrase string
	weight float64
}

// categoryKeywords is the deterministic scoring table. Multi-word phrases
// weigh more than single tokens.
var categoryKeywords = map[domain.EmailCategory][]keywordWeight{
	domain.CategoryInterviewInvitation: {
		{"interview", 3.0},
		{"interview invitation", 4.0},
		{"confirm your availability", 2.5},
		{"schedule a call", 2.5},
		{"schedule an interview", 3.5},
		{"invite you to interview", 3.5},
		{"phone screen", 3.0},
		{"video call", 2.0},
		{"meet the team", 2.0},
		{"next round", 2.5},
		{"technical assessment", 2.5},
		{"coding challenge", 2.5},
		{"availability", 1.5},
		{"calendly", 2.0},
	},
	domain.CategoryRejection: {
		{"unfortunately", 3.0},
		{"regret to inform", 3.5},
		{"not moving forward", 3.5},
		{"decided to pursue other candidates", 3.5},
		{"position has been filled", 3.0},
		{"will not be proceeding", 3.0},
		{"other candidates", 2.0},
		{"we wish you", 1.5},
		{"best of luck", 1.5},
		{"future opportunities", 1.5},
	},
	domain.CategoryOffer: {
		{"offer", 2.5},
		{"pleased to offer", 3.5},
		{"job offer", 3.5},
		{"offer letter", 3.5},
		{"congratulations", 2.5},
		{"compensation package", 3.0},
		{"start date", 2.0},
		{"salary", 1.5},
		{"welcome to the team", 3.0},
	},
	domain.CategoryInformationRequest: {
		{"additional information", 3.0},
		{"please provide", 2.5},
		{"could you send", 2.5},
		{"work authorization", 2.5},
		{"references", 2.0},
		{"portfolio", 2.0},
		{"questionnaire", 2.5},
		{"complete the following", 2.5},
	},
	domain.CategoryFollowUpRequired: {
		{"action required", 3.0},
		{"response required", 3.0},
		{"deadline", 2.5},
		{"expires", 2.0},
		{"reminder", 2.0},
		{"please respond", 2.5},
		{"waiting for your", 2.5},
	},
	domain.CategoryAcknowledgment: {
		{"received your application", 3.5},
		{"thank you for applying", 3.5},
		{"application received", 3.5},
		{"we have received", 3.0},
		{"under review", 2.5},
		{"reviewing your application", 3.0},
		{"will be in touch", 2.0},
		{"thank you for your interest", 2.5},
	},
	domain.CategorySchedulingRequest: {
		{"reschedule", 3.0},
		{"confirm your availability", 3.0},
		{"pick a time", 3.0},
		{"time slots", 2.5},
		{"what time works", 3.0},
		{"propose a new time", 3.0},
	},
}

// actionTypeFor maps a category to the follow-up action it demands.
var actionTypeFor = map[domain.EmailCategory]string{
	domain.CategoryInterviewInvitation: "schedule_interview",
	domain.CategoryInformationRequest:  "provide_information",
	domain.CategoryFollowUpRequired:    "respond",
	domain.CategorySchedulingRequest:   "confirm_schedule",
	domain.CategoryOffer:               "review_offer",
}

// requiresActionFor marks categories the user must act on.
var requiresActionFor = map[domain.EmailCategory]bool{
	domain.CategoryInterviewInvitation: true,
	domain.CategoryInformationRequest:  true,
	domain.CategoryFollowUpRequired:    true,
	domain.CategorySchedulingRequest:   true,
	domain.CategoryOffer:               true,
}
