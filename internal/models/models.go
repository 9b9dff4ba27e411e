// Package models defines the core data structures for MoodMatch.
//
// It includes the mood submission, the analysis and match payloads returned by the
// backend, and the outcome records written to the journal.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// MaxMoodTextLength bounds the mood description sent to the backend
	MaxMoodTextLength = 4096
	// MaxContextLength bounds the optional context string
	MaxContextLength = 512
)

// MoodSubmission is the user-authored input to one flow instance.
type MoodSubmission struct {
	Text        string    `json:"mood_description"`
	UserID      string    `json:"user_id"`
	Context     string    `json:"context,omitempty"` // academic, social, personal
	SubmittedAt time.Time `json:"timestamp"`
}

// NewMoodSubmission stamps a submission with the current time.
func NewMoodSubmission(userID, text string) MoodSubmission {
	return MoodSubmission{Text: text, UserID: userID, SubmittedAt: time.Now()}
}

// Validate rejects submissions the backend should never see.
func (s MoodSubmission) Validate() error {
	const op = "MoodSubmission.Validate"
	if strings.TrimSpace(s.Text) == "" {
		return NewFlowError(ErrorKindInvalidInput, op, fmt.Errorf("mood text is empty"))
	}
	if len(s.Text) > MaxMoodTextLength {
		return NewFlowError(ErrorKindInvalidInput, op, fmt.Errorf("mood text exceeds %d bytes", MaxMoodTextLength))
	}
	if strings.TrimSpace(s.UserID) == "" {
		return NewFlowError(ErrorKindInvalidInput, op, fmt.Errorf("user id is empty"))
	}
	if len(s.Context) > MaxContextLength {
		return NewFlowError(ErrorKindInvalidInput, op, fmt.Errorf("context exceeds %d bytes", MaxContextLength))
	}
	return nil
}

// MatchingCriteria is the analyzer's hint to the matcher.
type MatchingCriteria struct {
	SimilarExperience string `json:"similar_experience,omitempty"`
	SupportType       string `json:"support_type,omitempty"`
	Context           string `json:"context,omitempty"`
}

// AnalysisResult is the output of the mood analysis step.
type AnalysisResult struct {
	PrimaryEmotion       string           `json:"primary_emotion"`
	UrgencyLevel         UrgencyLevel     `json:"urgency_level"`
	CrisisDetected       bool             `json:"crisis_detected"`
	Needs                []string         `json:"needs"`
	RecommendedResources []string         `json:"recommended_resources"`
	MatchingCriteria     MatchingCriteria `json:"matching_criteria"`
}

// MatchedPeer describes the peer returned by the matcher.
type MatchedPeer struct {
	UserID    string   `json:"user_id,omitempty"`
	Name      string   `json:"name"`
	Avatar    string   `json:"avatar,omitempty"`
	Year      string   `json:"year,omitempty"`
	Bio       string   `json:"bio,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// Location is one suggested meeting place.
type Location struct {
	Name      string `json:"location_name"`
	Reasoning string `json:"reasoning,omitempty"`
	Vibe      string `json:"vibe,omitempty"`
	BestFor   string `json:"best_for,omitempty"`
}

// LocationRecommendations groups the suggested places with overall advice.
type LocationRecommendations struct {
	Locations        []Location `json:"locations"`
	OverallStrategy  string     `json:"overall_strategy,omitempty"`
	TimingSuggestion string     `json:"timing_suggestion,omitempty"`
	ConversationTips []string   `json:"conversation_tips,omitempty"`
}

// EmailPreview is the notification email the backend would send to both peers.
type EmailPreview struct {
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	PreviewText string `json:"preview_text,omitempty"`
}

// MatchResult is the output of the peer matching step.
type MatchResult struct {
	MatchFound              bool                     `json:"match_found"`
	MatchScore              int                      `json:"match_score"`
	MatchedPeer             *MatchedPeer             `json:"matched_peer,omitempty"`
	SharedThemes            []string                 `json:"shared_emotional_themes,omitempty"`
	SharedInterests         []string                 `json:"shared_interests,omitempty"`
	ConversationStarters    []string                 `json:"conversation_starters,omitempty"`
	LocationRecommendations *LocationRecommendations `json:"location_recommendations,omitempty"`
	EmailPreview            *EmailPreview            `json:"email_preview,omitempty"`
	Rationale               string                   `json:"rationale,omitempty"`
	Message                 string                   `json:"message,omitempty"`
}

// HasPeer reports whether the result can be rendered as a successful match.
func (m *MatchResult) HasPeer() bool {
	return m != nil && m.MatchFound && m.MatchedPeer != nil
}
