package genai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/MoodMatch/internal/models"
	"github.com/BTreeMap/MoodMatch/internal/moodapi"
)

// moodAnalyzerSystemPrompt is the safety-first classifier prompt.
const moodAnalyzerSystemPrompt = `You are a compassionate but vigilant mood analyzer for university students seeking peer support.
Your primary role is safety: err on the side of caution.

Mark crisis_detected true if the text mentions self-harm, hurting oneself or others, suicide or
suicidal thoughts, wanting to die, "don't want to be here", "want to end it", a plan to harm, or
methods of self-harm. Do not second-guess.

Classify urgency_level as one of:
- CRISIS: any mention of self-harm, suicide or danger
- HIGH: severe distress, cannot cope
- MODERATE: stressed but managing, seeking support
- LOW: general support, minor stress

Return only a JSON object with exactly these keys:
{"primary_emotion": string, "urgency_level": string, "needs": [string],
 "matching_criteria": {"similar_experience": string, "support_type": string, "context": string},
 "crisis_detected": bool, "recommended_resources": [string]}`

// crisisPhrases trigger a crisis classification regardless of the model's answer.
var crisisPhrases = []string{
	"hurt myself",
	"harm myself",
	"kill myself",
	"end my life",
	"want to die",
	"wanna die",
	"suicide",
	"suicidal",
	"self-harm",
	"self harm",
	"don't want to be here",
	"dont want to be here",
	"want to end it",
	"i have a plan",
}

// ContainsCrisisLanguage reports whether text contains an unambiguous crisis phrase.
func ContainsCrisisLanguage(text string) bool {
	lower := strings.ToLower(text)
	lower = strings.ReplaceAll(lower, "’", "'")
	for _, phrase := range crisisPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// jsonGenerator is the part of Client the analyzer needs.
type jsonGenerator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// MoodAnalyzer classifies mood text directly through the chat model.
// It returns the same AnalysisResult shape as the backend's analysis endpoint.
type MoodAnalyzer struct {
	gen jsonGenerator
}

// NewMoodAnalyzer wraps a GenAI client.
func NewMoodAnalyzer(c *Client) *MoodAnalyzer {
	return &MoodAnalyzer{gen: c}
}

// Analyze classifies the submission. Crisis phrases always win over the model.
func (a *MoodAnalyzer) Analyze(ctx context.Context, sub models.MoodSubmission) (models.AnalysisResult, error) {
	const op = "genai.MoodAnalyzer.Analyze"
	flagged := ContainsCrisisLanguage(sub.Text)
	slog.Debug(op, "user_id", sub.UserID, "text_len", len(sub.Text), "keyword_crisis", flagged)

	userPrompt := sub.Text
	if sub.Context != "" {
		userPrompt = "Context: " + sub.Context + "\n\n" + sub.Text
	}

	content, err := a.gen.GenerateJSON(ctx, moodAnalyzerSystemPrompt, userPrompt)
	if err != nil {
		if flagged {
			slog.Warn(op+": model unavailable, using keyword crisis classification", "error", err)
			return keywordCrisisAnalysis(), nil
		}
		return models.AnalysisResult{}, models.NewFlowError(models.ErrorKindNetwork, op, err)
	}

	result, err := moodapi.ParseAnalysis(op, []byte(content))
	if err != nil {
		if flagged {
			slog.Warn(op+": unreadable model output, using keyword crisis classification", "error", err)
			return keywordCrisisAnalysis(), nil
		}
		return models.AnalysisResult{}, err
	}

	if flagged && !result.CrisisDetected {
		slog.Warn(op+": model missed crisis language, escalating", "model_urgency", result.UrgencyLevel)
		result.CrisisDetected = true
		result.UrgencyLevel = models.UrgencyCrisis
	}
	if result.CrisisDetected && len(result.RecommendedResources) == 0 {
		result.RecommendedResources = []string{"BU Police", "Crisis Hotline"}
	}
	slog.Debug(op+" succeeded", "user_id", sub.UserID, "urgency", result.UrgencyLevel, "crisis", result.CrisisDetected)
	return result, nil
}

func keywordCrisisAnalysis() models.AnalysisResult {
	return models.AnalysisResult{
		PrimaryEmotion:       "distressed",
		UrgencyLevel:         models.UrgencyCrisis,
		CrisisDetected:       true,
		Needs:                []string{"immediate_help"},
		RecommendedResources: []string{"BU Police", "Crisis Hotline"},
		MatchingCriteria: models.MatchingCriteria{
			SimilarExperience: "crisis",
			SupportType:       "professional",
			Context:           "emergency",
		},
	}
}
