package flow

import (
	"sync"

	"github.com/BTreeMap/MoodMatch/internal/models"
)

// StepSequence yields the configured progress steps once each, in order.
// It is finite and cannot be restarted: after the last step Next keeps returning false.
type StepSequence struct {
	mu    sync.Mutex
	steps []models.StepConfig
	next  int
}

// NewStepSequence creates a sequence over a copy of steps.
func NewStepSequence(steps []models.StepConfig) *StepSequence {
	cp := make([]models.StepConfig, len(steps))
	copy(cp, steps)
	return &StepSequence{steps: cp}
}

// Next advances the sequence. The boolean is false once every step has been produced.
func (s *StepSequence) Next() (models.FlowStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.steps) {
		return models.FlowStep{}, false
	}
	cfg := s.steps[s.next]
	step := models.FlowStep{Index: s.next, Agent: cfg.Agent, Label: cfg.Label, Complete: true}
	s.next++
	return step, true
}

// Len is the configured number of steps.
func (s *StepSequence) Len() int {
	return len(s.steps)
}

// Remaining is how many steps Next has yet to produce.
func (s *StepSequence) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}
