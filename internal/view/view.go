// Package view renders flow progress and outcomes as plain text.
package view

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/MoodMatch/internal/flow"
	"github.com/BTreeMap/MoodMatch/internal/models"
	"github.com/BTreeMap/MoodMatch/internal/resources"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
)

// MaxStarters is how many conversation starters the result view shows.
const MaxStarters = 3

// ErrorMessage is the only failure text a student sees, whatever the cause.
const ErrorMessage = "Something went wrong, please try again."

var emotionIcons = map[string]string{
	"stressed":    "😰",
	"lonely":      "🏠",
	"homesick":    "🏠",
	"anxious":     "😟",
	"worried":     "😟",
	"overwhelmed": "😫",
	"sad":         "😢",
	"uncertain":   "🤔",
}

var safetyGuidelines = []string{
	"Keep conversations supportive and respectful",
	"Don't share personal identifying information",
	"If you feel uncomfortable, you can end the chat anytime",
	"This is peer support, not professional therapy",
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Percent is the progress shown once step has been displayed.
func Percent(step models.FlowStep, total int) int {
	if total <= 0 {
		return 100
	}
	return (step.Index + 1) * 100 / total
}

// Progress writes one progress line.
func Progress(w io.Writer, step models.FlowStep, total int) {
	fmt.Fprintf(w, "[%3d%%] %s: %s\n", Percent(step, total), step.Agent, step.Label)
}

// ProgressObserver prints each step as it is displayed. It implements flow.Observer.
type ProgressObserver struct {
	mu    sync.Mutex
	w     io.Writer
	total int
}

// NewProgressObserver writes progress for a flow with total steps to w.
func NewProgressObserver(w io.Writer, total int) *ProgressObserver {
	return &ProgressObserver{w: w, total: total}
}

func (p *ProgressObserver) OnState(string, flow.State) {}

func (p *ProgressObserver) OnStep(_ string, step models.FlowStep) {
	p.mu.Lock()
	defer p.mu.Unlock()
	Progress(p.w, step, p.total)
}

func (p *ProgressObserver) OnOutcome(flow.Outcome) {}

// Result renders the result view, or its no-match variant when nobody was found.
func Result(w io.Writer, h flow.ResultHandoff) {
	if !h.Result.HasPeer() {
		NoMatch(w, h)
		return
	}
	m := h.Result
	peer := m.MatchedPeer
	a := h.AnalysisResult

	fmt.Fprintln(w, "🎉 Match Found!")
	fmt.Fprintln(w, "We found you a compatible BU peer.")
	fmt.Fprintln(w)

	icon := emotionIcons[strings.ToLower(a.PrimaryEmotion)]
	if peer.Avatar != "" {
		icon = peer.Avatar
	}
	if icon == "" {
		icon = emotionIcons["stressed"]
	}
	fmt.Fprintf(w, "You matched with: %s %s", icon, peer.Name)
	if peer.Year != "" {
		fmt.Fprintf(w, " (%s)", peer.Year)
	}
	fmt.Fprintf(w, "  %d%% compatible\n", m.MatchScore)
	if peer.Bio != "" {
		fmt.Fprintf(w, "  %s\n", peer.Bio)
	}
	if len(peer.Interests) > 0 {
		fmt.Fprintf(w, "  Interests: %s\n", strings.Join(peer.Interests, ", "))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Why this match works:")
	if a.PrimaryEmotion != "" {
		fmt.Fprintf(w, "  • Both experiencing %s feelings\n", a.PrimaryEmotion)
	}
	for _, theme := range m.SharedThemes {
		fmt.Fprintf(w, "  • Shared theme: %s\n", theme)
	}
	if len(m.SharedInterests) > 0 {
		fmt.Fprintf(w, "  • Shared interests: %s\n", strings.Join(m.SharedInterests, ", "))
	}
	if ctx := a.MatchingCriteria.Context; ctx != "" {
		fmt.Fprintf(w, "  • Shared context: %s\n", humanize(ctx))
	}
	if m.Rationale != "" {
		fmt.Fprintf(w, "  %s\n", m.Rationale)
	}

	if len(m.ConversationStarters) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "💬 Conversation starters:")
		for i, s := range m.ConversationStarters {
			if i == MaxStarters {
				break
			}
			fmt.Fprintf(w, "  %d. %s\n", i+1, s)
		}
	}

	if lr := m.LocationRecommendations; lr != nil && len(lr.Locations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "📍 Where to meet:")
		for _, loc := range lr.Locations {
			fmt.Fprintf(w, "  • %s", loc.Name)
			if loc.Reasoning != "" {
				fmt.Fprintf(w, ": %s", loc.Reasoning)
			}
			fmt.Fprintln(w)
		}
		if lr.TimingSuggestion != "" {
			fmt.Fprintf(w, "  When: %s\n", lr.TimingSuggestion)
		}
	}

	if ep := m.EmailPreview; ep != nil && ep.Subject != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "✉️  Introduction email:")
		fmt.Fprintf(w, "  Subject: %s\n", ep.Subject)
		for _, line := range strings.Split(strings.TrimSpace(ep.Body), "\n") {
			fmt.Fprintf(w, "  | %s\n", line)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "⚠️  Safety guidelines:")
	for _, g := range safetyGuidelines {
		fmt.Fprintf(w, "  • %s\n", g)
	}
	recommended(w, a.RecommendedResources)
}

// NoMatch renders the result view when the matcher found nobody.
func NoMatch(w io.Writer, h flow.ResultHandoff) {
	fmt.Fprintln(w, "No match available right now.")
	if h.Result != nil && h.Result.Message != "" {
		fmt.Fprintln(w, h.Result.Message)
	} else {
		fmt.Fprintln(w, "No compatible peers are online at the moment. Please check back soon.")
	}
	recommended(w, h.AnalysisResult.RecommendedResources)
}

// Crisis renders the crisis view. When qr is set a QR code for texting the Crisis Text Line
// is drawn as well.
func Crisis(w io.Writer, h flow.CrisisHandoff, qr bool) {
	fmt.Fprintln(w, "🆘 We're concerned about your safety")
	fmt.Fprintln(w, "You don't have to go through this alone. Please reach out to one of these resources right now.")
	fmt.Fprintln(w)
	for _, r := range resources.Crisis() {
		tag := ""
		if r.Urgent {
			tag = " [24/7]"
		}
		fmt.Fprintf(w, "  %s%s\n    %s\n    %s\n", r.Name, tag, r.Contact, r.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "📞 Call %s now.\n", resources.EmergencyNumber)
	if h.Result.UrgencyLevel.Valid() {
		fmt.Fprintf(w, "Assessed urgency: %s\n", h.Result.UrgencyLevel)
	}
	if qr {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Scan to text HOME to 741741:")
		qrterminal.GenerateHalfBlock(resources.CrisisTextLineSMS, qrterminal.L, w)
	}
}

// Error renders the generic failure view.
func Error(w io.Writer) {
	fmt.Fprintln(w, ErrorMessage)
}

// Cancelled renders the view shown after the student backs out.
func Cancelled(w io.Writer) {
	fmt.Fprintln(w, "Cancelled. Nothing was submitted for matching.")
}

// Resources lists the support contacts.
func Resources(w io.Writer, list []resources.Resource) {
	for _, r := range list {
		fmt.Fprintf(w, "%s\n  %s", r.Name, r.Contact)
		if d := r.Dialable(); d != "" {
			fmt.Fprintf(w, " (dial %s)", d)
		}
		fmt.Fprintf(w, "\n  %s\n", r.Description)
	}
}

// History lists journaled outcomes. Records never hold mood text.
func History(w io.Writer, records []models.OutcomeRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No submissions yet.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s  %-7s %-9s", r.FinishedAt.Local().Format("2006-01-02 15:04"), r.Destination, r.UrgencyLevel)
		switch {
		case r.ErrorKind != "":
			fmt.Fprintf(w, " %s", r.ErrorKind)
		case r.MatchFound:
			fmt.Fprintf(w, " matched (%d%%)", r.MatchScore)
		case r.Destination == models.DestinationResult:
			fmt.Fprint(w, " no match")
		}
		fmt.Fprintf(w, "  %s\n", r.Duration().Round(100*time.Millisecond))
	}
}

func recommended(w io.Writer, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "📚 Recommended BU resources: %s\n", strings.Join(names, ", "))
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
