// Package flow defines the states of a submission flow and the transitions between them.
package flow

import "fmt"

// State is the lifecycle position of one flow instance.
type State int32

const (
	StateIdle State = iota
	StateAnimating
	StateAnalyzing
	StateMatching
	StateCrisis
	StateResult
	StateError
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateAnimating: "animating",
	StateAnalyzing: "analyzing",
	StateMatching:  "matching",
	StateCrisis:    "crisis",
	StateResult:    "result",
	StateError:     "error",
	StateCancelled: "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	switch s {
	case StateCrisis, StateResult, StateError, StateCancelled:
		return true
	}
	return false
}

// transitions lists the forward edges of the state machine. Cancellation is allowed from
// every non-terminal state and is checked separately.
var transitions = map[State][]State{
	StateIdle:      {StateAnimating, StateError},
	StateAnimating: {StateAnalyzing, StateError},
	StateAnalyzing: {StateMatching, StateCrisis, StateError},
	StateMatching:  {StateResult, StateError},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateCancelled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
