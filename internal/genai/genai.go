// Package genai provides GenAI-backed operations for LeadPipe using the OpenAI API.
//
// It covers the three language-model touchpoints: intent classification of
// inbound messages, contextual reply generation from conversation history, and
// lead scoring for the outreach job.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/violetwave/leadpipe/internal/models"
)

// ErrNoChoicesReturned indicates the API answered without any completion choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// Default identity used in prompts when no options are provided.
const (
	DefaultAgentName   = "Pedro"
	DefaultCompanyName = "Violet Wave"
	DefaultNiche       = "Odontólogos y Clínicas Dentales"
)

// chatCompletionService defines the minimal interface for chat completions.
type chatCompletionService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ClientInterface defines the GenAI operations consumed by the conversation
// engine and the outreach job.
type ClientInterface interface {
	ClassifyIntent(ctx context.Context, text string) (models.Intent, error)
	GenerateReply(ctx context.Context, history []models.Turn) (string, error)
	ScoreLead(ctx context.Context, lead models.Lead) (models.LeadScore, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	AgentName   string
	CompanyName string
	Niche       string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithAgentName sets the SDR persona name used in prompts.
func WithAgentName(name string) Option {
	return func(o *Opts) { o.AgentName = name }
}

// WithCompanyName sets the company name used in prompts.
func WithCompanyName(name string) Option {
	return func(o *Opts) { o.CompanyName = name }
}

// WithNiche sets the lead niche description used in scoring prompts.
func WithNiche(niche string) Option {
	return func(o *Opts) { o.Niche = niche }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatCompletionService
	agentName   string
	companyName string
	niche       string
}

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.AgentName == "" {
		cfg.AgentName = DefaultAgentName
	}
	if cfg.CompanyName == "" {
		cfg.CompanyName = DefaultCompanyName
	}
	if cfg.Niche == "" {
		cfg.Niche = DefaultNiche
	}
	slog.Debug("GenAI NewClient configured", "agent", cfg.AgentName, "company", cfg.CompanyName)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:        &cli.Chat.Completions,
		agentName:   cfg.AgentName,
		companyName: cfg.CompanyName,
		niche:       cfg.Niche,
	}, nil
}

// ClassifyIntent maps a single inbound message to an Intent. The classifier is
// stateless per call and never sees conversation history. Unparseable model
// output falls back to INTERESTED, the least disruptive reading.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (models.Intent, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4o,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierSystemPrompt),
			openai.UserMessage(classifierUserPrompt(text)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		slog.Error("GenAI ClassifyIntent request failed", "error", err)
		return "", fmt.Errorf("intent classification failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}

	raw := resp.Choices[0].Message.Content
	intent, err := models.ParseIntent(raw)
	if err != nil {
		slog.Warn("GenAI ClassifyIntent unparseable label, defaulting to INTERESTED", "raw", raw)
		return models.IntentInterested, nil
	}
	slog.Debug("GenAI ClassifyIntent succeeded", "intent", intent)
	return intent, nil
}

// GenerateReply produces the next assistant utterance from the full turn
// history. The generator is stateless across calls.
func (c *Client) GenerateReply(ctx context.Context, history []models.Turn) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(c.generatorSystemPrompt()),
	}
	for _, turn := range history {
		switch turn.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModelGPT4o,
		Messages:    messages,
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		slog.Error("GenAI GenerateReply request failed", "error", err)
		return "", fmt.Errorf("reply generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ScoreLead runs the qualification pass over one lead, returning a numeric
// score, a qualification decision, and a ready-to-send opening message.
func (c *Client) ScoreLead(ctx context.Context, lead models.Lead) (models.LeadScore, error) {
	var score models.LeadScore

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.scorerSystemPrompt()),
			openai.UserMessage(scorerUserPrompt(lead)),
		},
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		slog.Error("GenAI ScoreLead request failed", "error", err, "lead", lead.Name)
		return score, fmt.Errorf("lead scoring failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return score, ErrNoChoicesReturned
	}

	content := stripJSONFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &score); err != nil {
		slog.Warn("GenAI ScoreLead malformed scoring result", "error", err, "lead", lead.Name)
		return score, fmt.Errorf("malformed scoring result: %w", err)
	}
	slog.Debug("GenAI ScoreLead succeeded", "lead", lead.Name, "score", score.Score, "qualified", score.IsQualified)
	return score, nil
}

// stripJSONFences removes markdown code fences the model may wrap around JSON.
func stripJSONFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
