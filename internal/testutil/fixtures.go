package testutil

// AnalysisBody wraps an analysis object the way the backend does.
func AnalysisBody(analysis map[string]any) map[string]any {
	return map[string]any{"mood_analysis": analysis}
}

// StressedAnalysis is a non-crisis analysis for a student worried about finals.
func StressedAnalysis() map[string]any {
	return map[string]any{
		"primary_emotion":       "stressed",
		"urgency_level":         "MODERATE",
		"crisis_detected":       false,
		"needs":                 []string{"peer support", "study strategies"},
		"recommended_resources": []string{"Educational Resource Center"},
		"matching_criteria": map[string]any{
			"similar_experience": "academic_pressure",
			"support_type":       "listener",
			"context":            "finals_week",
		},
	}
}

// CrisisAnalysis is an analysis that flags a crisis.
func CrisisAnalysis() map[string]any {
	return map[string]any{
		"primary_emotion":       "hopeless",
		"urgency_level":         "HIGH",
		"crisis_detected":       true,
		"needs":                 []string{"immediate_help"},
		"recommended_resources": []string{"BU Police", "Crisis Hotline"},
	}
}

// FoundMatch is a successful match with a score of 87.
func FoundMatch() map[string]any {
	return map[string]any{
		"match_found": true,
		"match_score": 87,
		"matched_peer": map[string]any{
			"user_id":   "student_jake",
			"name":      "Jake",
			"avatar":    "🧑‍🔧",
			"year":      "Sophomore, Engineering",
			"bio":       "Thermodynamics survivor, rock climber.",
			"interests": []string{"Rock climbing", "EDM", "3D printing"},
		},
		"shared_emotional_themes": []string{"academic pressure", "exam anxiety"},
		"shared_interests":        []string{"Hackathons"},
		"conversation_starters": []string{
			"What's been the hardest part of finals for you?",
			"How do you unwind after a long study session?",
			"Any study spots you swear by?",
			"What are you looking forward to after exams?",
		},
		"location_recommendations": map[string]any{
			"locations": []map[string]any{
				{"location_name": "Mugar Library", "reasoning": "Quiet place to study side by side", "vibe": "calm"},
				{"location_name": "BU Beach", "reasoning": "Fresh air between study blocks", "vibe": "relaxed"},
			},
			"overall_strategy":  "Low-pressure study buddy meetup",
			"timing_suggestion": "Weekday afternoon",
		},
		"email_preview": map[string]any{
			"subject":      "We found you a peer match!",
			"body":         "<p>Hi Ananya, you and Jake are both navigating finals.</p>",
			"preview_text": "You and Jake have a lot in common",
		},
		"rationale": "Both stressed about exams with overlapping interests",
	}
}

// NoMatch is a match response with no available peer.
func NoMatch() map[string]any {
	return map[string]any{
		"match_found": false,
		"match_score": 0,
		"rationale":   "No available peers at the moment. Please try again in a few minutes.",
	}
}
