package models

import "time"

// Destination is where a flow instance ends up.
type Destination string

const (
	DestinationCrisis    Destination = "crisis"
	DestinationResult    Destination = "result"
	DestinationError     Destination = "error"
	DestinationCancelled Destination = "cancelled"
)

// OutcomeRecord is the journal row written when a flow instance terminates.
// It never carries the mood text or the match payload.
type OutcomeRecord struct {
	FlowID         string      `json:"flow_id"`
	UserID         string      `json:"user_id"`
	Destination    Destination `json:"destination"`
	ErrorKind      ErrorKind   `json:"error_kind,omitempty"`
	PrimaryEmotion string      `json:"primary_emotion,omitempty"`
	UrgencyLevel   string      `json:"urgency_level,omitempty"`
	MatchFound     bool        `json:"match_found"`
	MatchScore     int         `json:"match_score"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
}

// Duration is how long the flow instance ran.
func (r OutcomeRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
