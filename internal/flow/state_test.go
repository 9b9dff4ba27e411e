package flow

import (
	"testing"

	"github.com/BTreeMap/MoodMatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateAnimating, true},
		{StateIdle, StateError, true},
		{StateIdle, StateAnalyzing, false},
		{StateAnimating, StateAnalyzing, true},
		{StateAnimating, StateResult, false},
		{StateAnalyzing, StateCrisis, true},
		{StateAnalyzing, StateMatching, true},
		{StateAnalyzing, StateResult, false},
		{StateMatching, StateResult, true},
		{StateMatching, StateCrisis, false},
		{StateMatching, StateCancelled, true},
		{StateResult, StateCancelled, false},
		{StateCrisis, StateMatching, false},
		{StateCancelled, StateCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "analyzing", StateAnalyzing.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateMatching.Terminal())
}

func TestStepSequence(t *testing.T) {
	seq := NewStepSequence(models.DefaultSteps())
	require.Equal(t, 4, seq.Len())

	var agents []string
	for i := 0; i < 4; i++ {
		step, ok := seq.Next()
		require.True(t, ok)
		assert.Equal(t, i, step.Index)
		assert.True(t, step.Complete)
		assert.Equal(t, 3-i, seq.Remaining())
		agents = append(agents, step.Agent)
	}
	assert.Equal(t, []string{"MoodAnalyzer", "Coordinator", "PeerMatcher", "ConversationFacilitator"}, agents)

	for i := 0; i < 3; i++ {
		_, ok := seq.Next()
		assert.False(t, ok, "sequence must stay exhausted")
	}
}

func TestStepSequence_CopiesConfig(t *testing.T) {
	steps := []models.StepConfig{{Agent: "A", Label: "a"}}
	seq := NewStepSequence(steps)
	steps[0].Agent = "changed"
	step, ok := seq.Next()
	require.True(t, ok)
	assert.Equal(t, "A", step.Agent)
}

func TestResolveDestination(t *testing.T) {
	stressed := models.AnalysisResult{PrimaryEmotion: "stressed", UrgencyLevel: models.UrgencyModerate}
	crisis := models.AnalysisResult{PrimaryEmotion: "hopeless", UrgencyLevel: models.UrgencyHigh, CrisisDetected: true}
	found := &models.MatchResult{MatchFound: true, MatchScore: 87, MatchedPeer: &models.MatchedPeer{Name: "Jake"}}
	none := &models.MatchResult{MatchFound: false, Message: "No compatible peers"}

	tests := []struct {
		name     string
		analysis models.AnalysisResult
		match    *models.MatchResult
		want     Route
	}{
		{"crisis without match", crisis, nil, Route{Destination: models.DestinationCrisis}},
		{"crisis ignores match", crisis, found, Route{Destination: models.DestinationCrisis}},
		{"match found", stressed, found, Route{Destination: models.DestinationResult}},
		{"no match", stressed, none, Route{Destination: models.DestinationResult, NoMatch: true}},
		{"missing match", stressed, nil, Route{Destination: models.DestinationResult, NoMatch: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDestination(tt.analysis, tt.match))
			// Pure: same inputs, same answer.
			assert.Equal(t, ResolveDestination(tt.analysis, tt.match), ResolveDestination(tt.analysis, tt.match))
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" Concurrent ")
	require.NoError(t, err)
	assert.Equal(t, PolicyConcurrent, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicySequential, p)

	_, err = ParsePolicy("parallel")
	assert.Error(t, err)
}
