package models

// FlowStep is one stage of the progress display shown while a submission is processed.
type FlowStep struct {
	Index    int    `json:"index"`
	Agent    string `json:"agent"`
	Label    string `json:"status"`
	Complete bool   `json:"complete"`
}

// StepConfig configures one progress stage.
type StepConfig struct {
	Agent string
	Label string
}

// DefaultSteps are the four stages of the multi-agent progress display.
func DefaultSteps() []StepConfig {
	return []StepConfig{
		{Agent: "MoodAnalyzer", Label: "Analyzing emotional state..."},
		{Agent: "Coordinator", Label: "Deciding coordination strategy..."},
		{Agent: "PeerMatcher", Label: "Finding compatible peers..."},
		{Agent: "ConversationFacilitator", Label: "Generating conversation starters..."},
	}
}
