// Package moodapi is the HTTP client for the MoodMatch backend.
//
// It speaks one fixed contract: POST /api/mood/analyze, POST /api/find-match and GET /health.
// Every failure is returned as a *models.FlowError of kind NetworkError or MalformedResponse.
package moodapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/MoodMatch/internal/models"
)

// Constants for the backend client
const (
	// DefaultBaseURL is where the demo backend listens
	DefaultBaseURL = "http://localhost:8001"
	// DefaultUserAgent identifies the client to the backend
	DefaultUserAgent = "MoodMatch-CLI/1.0"
	// MaxResponseBytes caps how much of a response body is read
	MaxResponseBytes = 1 << 20
	// errorSnippetLength caps the body excerpt kept in error messages
	errorSnippetLength = 200

	AnalyzePath   = "/api/mood/analyze"
	FindMatchPath = "/api/find-match"
	HealthPath    = "/health"
)

// Opts holds configuration options for the backend client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// Option defines a configuration option for the backend client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) {
		o.BaseURL = u
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Opts) {
		o.UserAgent = ua
	}
}

// Client talks to the MoodMatch backend.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

// NewClient creates a backend client, applying any provided options.
// Request deadlines come from the caller's context, so the default http.Client has no timeout.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	slog.Debug("moodapi.NewClient", "base_url", cfg.BaseURL)
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      cfg.HTTPClient,
		userAgent: cfg.UserAgent,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// analyzeRequest is the body of POST /api/mood/analyze.
type analyzeRequest struct {
	UserID          string `json:"user_id"`
	MoodDescription string `json:"mood_description"`
	Context         string `json:"context,omitempty"`
}

// wireAnalysis mirrors models.AnalysisResult with pointer fields so missing keys can be detected.
type wireAnalysis struct {
	PrimaryEmotion       string                  `json:"primary_emotion"`
	UrgencyLevel         string                  `json:"urgency_level"`
	CrisisDetected       *bool                   `json:"crisis_detected"`
	Needs                []string                `json:"needs"`
	RecommendedResources []string                `json:"recommended_resources"`
	MatchingCriteria     models.MatchingCriteria `json:"matching_criteria"`
}

type analyzeResponse struct {
	MoodAnalysis *wireAnalysis `json:"mood_analysis"`
}

// Analyze submits the mood text for analysis.
func (c *Client) Analyze(ctx context.Context, sub models.MoodSubmission) (models.AnalysisResult, error) {
	const op = "moodapi.Analyze"
	slog.Debug(op, "user_id", sub.UserID, "text_len", len(sub.Text))

	var resp analyzeResponse
	body := analyzeRequest{UserID: sub.UserID, MoodDescription: sub.Text, Context: sub.Context}
	if err := c.do(ctx, op, http.MethodPost, AnalyzePath, body, &resp); err != nil {
		return models.AnalysisResult{}, err
	}
	if resp.MoodAnalysis == nil {
		return models.AnalysisResult{}, models.Malformed(op, "response has no mood_analysis")
	}
	result, err := decodeAnalysis(op, *resp.MoodAnalysis)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	slog.Debug(op+" succeeded", "user_id", sub.UserID, "urgency", result.UrgencyLevel, "crisis", result.CrisisDetected)
	return result, nil
}

// decodeAnalysis validates a wire analysis and converts it to the domain type.
func decodeAnalysis(op string, w wireAnalysis) (models.AnalysisResult, error) {
	if w.CrisisDetected == nil {
		return models.AnalysisResult{}, models.Malformed(op, "mood_analysis has no crisis_detected")
	}
	if strings.TrimSpace(w.PrimaryEmotion) == "" && !*w.CrisisDetected {
		return models.AnalysisResult{}, models.Malformed(op, "mood_analysis has no primary_emotion")
	}
	urgency, err := models.ParseUrgencyLevel(w.UrgencyLevel)
	switch {
	case err == nil:
	case *w.CrisisDetected:
		// A crisis flag is never discarded over a bad urgency field.
		slog.Warn(op+": crisis analysis with unreadable urgency, assuming CRISIS", "urgency_level", w.UrgencyLevel)
		urgency = models.UrgencyCrisis
	default:
		return models.AnalysisResult{}, models.NewFlowError(models.ErrorKindMalformedResponse, op, err)
	}
	return models.AnalysisResult{
		PrimaryEmotion:       w.PrimaryEmotion,
		UrgencyLevel:         urgency,
		CrisisDetected:       *w.CrisisDetected,
		Needs:                w.Needs,
		RecommendedResources: w.RecommendedResources,
		MatchingCriteria:     w.MatchingCriteria,
	}, nil
}

// ParseAnalysis decodes a bare analysis JSON object, as produced by a model or a stub.
func ParseAnalysis(op string, data []byte) (models.AnalysisResult, error) {
	var w wireAnalysis
	if err := json.Unmarshal(data, &w); err != nil {
		return models.AnalysisResult{}, models.NewFlowError(models.ErrorKindMalformedResponse, op, fmt.Errorf("decode analysis: %w", err))
	}
	return decodeAnalysis(op, w)
}

// findMatchRequest is the body of POST /api/find-match.
type findMatchRequest struct {
	UserID       string                `json:"user_id"`
	MoodAnalysis models.AnalysisResult `json:"mood_analysis"`
}

type findMatchResponse struct {
	models.MatchResult
	MatchFound *bool `json:"match_found"`
}

// FindMatch asks the backend for a peer match based on the analysis.
func (c *Client) FindMatch(ctx context.Context, userID string, analysis models.AnalysisResult) (models.MatchResult, error) {
	const op = "moodapi.FindMatch"
	slog.Debug(op, "user_id", userID, "emotion", analysis.PrimaryEmotion)

	var resp findMatchResponse
	if err := c.do(ctx, op, http.MethodPost, FindMatchPath, findMatchRequest{UserID: userID, MoodAnalysis: analysis}, &resp); err != nil {
		return models.MatchResult{}, err
	}
	if resp.MatchFound == nil {
		return models.MatchResult{}, models.Malformed(op, "response has no match_found")
	}
	result := resp.MatchResult
	result.MatchFound = *resp.MatchFound
	if result.MatchFound && result.MatchedPeer == nil {
		return models.MatchResult{}, models.Malformed(op, "match_found is true but matched_peer is missing")
	}
	if result.MatchScore < 0 || result.MatchScore > 100 {
		return models.MatchResult{}, models.Malformed(op, "match_score %d out of range", result.MatchScore)
	}
	slog.Debug(op+" succeeded", "user_id", userID, "match_found", result.MatchFound, "score", result.MatchScore)
	return result, nil
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string `json:"status"`
}

// Health probes backend liveness. Used for diagnostics only.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	const op = "moodapi.Health"
	var hs HealthStatus
	if err := c.do(ctx, op, http.MethodGet, HealthPath, nil, &hs); err != nil {
		return HealthStatus{}, err
	}
	if hs.Status == "" {
		return HealthStatus{}, models.Malformed(op, "response has no status")
	}
	return hs, nil
}

// StatusError records a non-2xx response.
type StatusError struct {
	StatusCode int
	Snippet    string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Snippet)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			// Request bodies are built from our own types, so this is a programming error.
			return models.NewFlowError(models.ErrorKindNetwork, op, fmt.Errorf("encode request: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return models.NewFlowError(models.ErrorKindNetwork, op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error(op+" transport failed", "error", err, "path", path)
		return models.NewFlowError(models.ErrorKindNetwork, op, transportError(ctx, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		slog.Error(op+" read body failed", "error", err, "path", path)
		return models.NewFlowError(models.ErrorKindNetwork, op, fmt.Errorf("read response: %w", transportError(ctx, err)))
	}
	slog.Debug(op+" response", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error(op+" non-success status", "status", resp.StatusCode, "path", path)
		return models.NewFlowError(models.ErrorKindNetwork, op, &StatusError{StatusCode: resp.StatusCode, Snippet: snippet(data)})
	}

	if err := json.Unmarshal(data, out); err != nil {
		slog.Error(op+" decode failed", "error", err, "path", path)
		return models.NewFlowError(models.ErrorKindMalformedResponse, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// transportError prefers the context's reason so timeouts read as timeouts.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > errorSnippetLength {
		s = s[:errorSnippetLength] + "..."
	}
	return s
}
