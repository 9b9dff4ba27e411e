package flow

import "github.com/BTreeMap/MoodMatch/internal/models"

// Route is where a finished flow sends the student.
type Route struct {
	Destination models.Destination
	// NoMatch is set on the result route when the backend found nobody. The result view
	// renders its no-match variant instead of a peer card.
	NoMatch bool
}

// ResolveDestination picks the route for an analysis and an optional match. It is pure.
// A crisis analysis always routes to the crisis view, whatever match is supplied.
func ResolveDestination(analysis models.AnalysisResult, match *models.MatchResult) Route {
	if analysis.CrisisDetected {
		return Route{Destination: models.DestinationCrisis}
	}
	return Route{Destination: models.DestinationResult, NoMatch: !match.HasPeer()}
}

// ResultHandoff is the payload delivered to the result view.
type ResultHandoff struct {
	Result         *models.MatchResult   `json:"result"`
	MoodText       string                `json:"moodText"`
	AnalysisResult models.AnalysisResult `json:"analysisResult"`
}

// CrisisHandoff is the payload delivered to the crisis view.
type CrisisHandoff struct {
	Result models.AnalysisResult `json:"result"`
}
