// Package genai provides GenAI-enhanced operations using OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Default model parameters
const (
	DefaultModel               = string(openai.ChatModelGPT4oMini)
	DefaultTemperature         = 0.2
	DefaultMaxCompletionTokens = 600
)

// Error variables
var (
	ErrMissingAPIKey     = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK's completions service to chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(o *Opts) {
		o.BaseURL = u
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) {
		o.Temperature = t
	}
}

// WithMaxCompletionTokens caps the completion length.
func WithMaxCompletionTokens(n int64) Option {
	return func(o *Opts) {
		o.MaxCompletionTokens = n
	}
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat                chatService
	model               string
	temperature         float64
	maxCompletionTokens int64
}

// NewClient initializes a GenAI client. The API key falls back to $OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:               DefaultModel,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("genai.NewClient: API key not set")
		return nil, ErrMissingAPIKey
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("genai.NewClient", "model", cfg.Model, "temperature", cfg.Temperature, "base_url_set", cfg.BaseURL != "")

	return &Client{
		chat:                completionsAdapter{svc: &cli.Chat.Completions},
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
	}, nil
}

// GenerateJSON asks the model for a JSON object and returns the raw content.
func (c *Client) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxCompletionTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("genai.GenerateJSON: completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateJSON: no choices returned", "model", c.model)
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("genai.GenerateJSON succeeded", "model", c.model, "content_len", len(content))
	return content, nil
}
