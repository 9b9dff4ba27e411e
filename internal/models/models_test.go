package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoodSubmissionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sub     MoodSubmission
		wantErr bool
	}{
		{name: "valid", sub: NewMoodSubmission("student_ananya", "I'm stressed about finals")},
		{name: "empty text", sub: NewMoodSubmission("student_ananya", ""), wantErr: true},
		{name: "whitespace text", sub: NewMoodSubmission("student_ananya", "  \n\t "), wantErr: true},
		{name: "missing user", sub: NewMoodSubmission("", "lonely"), wantErr: true},
		{name: "text too long", sub: NewMoodSubmission("u", strings.Repeat("a", MaxMoodTextLength+1)), wantErr: true},
		{name: "context too long", sub: MoodSubmission{UserID: "u", Text: "ok", Context: strings.Repeat("c", MaxContextLength+1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, ErrorKindInvalidInput, KindOf(err))
		})
	}
}

func TestUrgencyLevelOrdering(t *testing.T) {
	assert.True(t, UrgencyLow < UrgencyModerate)
	assert.True(t, UrgencyModerate < UrgencyHigh)
	assert.True(t, UrgencyHigh < UrgencyCrisis)
	assert.True(t, UrgencyCrisis.AtLeast(UrgencyHigh))
	assert.False(t, UrgencyModerate.AtLeast(UrgencyHigh))
	assert.False(t, UrgencyUnknown.Valid())
}

func TestParseUrgencyLevel(t *testing.T) {
	level, err := ParseUrgencyLevel(" high ")
	require.NoError(t, err)
	assert.Equal(t, UrgencyHigh, level)

	_, err = ParseUrgencyLevel("SEVERE")
	assert.Error(t, err)
}

func TestAnalysisResultJSON(t *testing.T) {
	raw := `{
		"primary_emotion": "stressed",
		"urgency_level": "moderate",
		"crisis_detected": false,
		"needs": ["peer support"],
		"recommended_resources": [],
		"matching_criteria": {"similar_experience": "academic_pressure", "support_type": "listener", "context": "finals"}
	}`
	var a AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	assert.Equal(t, UrgencyModerate, a.UrgencyLevel)
	assert.Equal(t, "academic_pressure", a.MatchingCriteria.SimilarExperience)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"urgency_level":"MODERATE"`)
}

func TestAnalysisResultRejectsUnknownUrgency(t *testing.T) {
	var a AnalysisResult
	err := json.Unmarshal([]byte(`{"urgency_level": "EXTREME"}`), &a)
	assert.Error(t, err)
}

func TestMatchResultHasPeer(t *testing.T) {
	var nilResult *MatchResult
	assert.False(t, nilResult.HasPeer())
	assert.False(t, (&MatchResult{MatchFound: true}).HasPeer())
	assert.False(t, (&MatchResult{MatchFound: false, MatchedPeer: &MatchedPeer{Name: "Marcus"}}).HasPeer())
	assert.True(t, (&MatchResult{MatchFound: true, MatchedPeer: &MatchedPeer{Name: "Marcus"}}).HasPeer())
}

func TestFlowErrorIs(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("analyze: %w", NewFlowError(ErrorKindNetwork, "Client.Analyze", base))

	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, base)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, ErrorKindNetwork, KindOf(err))
	assert.Equal(t, ErrorKindNetwork, KindOf(errors.New("unclassified")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))

	m := Malformed("Client.FindMatch", "missing %s", "match_found")
	assert.ErrorIs(t, m, ErrMalformedResponse)
	assert.Contains(t, m.Error(), "missing match_found")
}
