// Package llm wraps the hosted language model behind the two calls the
// workflow needs: free-form completion and constrained choice.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = string(anthropic.ModelClaudeHaiku4_5_20251001)
	defaultMaxTokens = 4000
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY environment variable not set")
	// ErrEmptyResponse is returned when the model answers without text.
	ErrEmptyResponse = errors.New("no text response from model")
	// ErrNoChoice is returned when the model did not pick one of the offered choices.
	ErrNoChoice = errors.New("model made no choice")
)

// Choice is one labelled option offered to the model as a tool.
type Choice struct {
	Name        string
	Description string
}

// Client is the model surface used by the router, the SQL checker and the
// plot generator.
type Client interface {
	// Complete sends one user prompt and returns the concatenated text answer.
	Complete(ctx context.Context, system, prompt string) (string, error)
	// Choose forces the model to pick exactly one of choices and returns its name.
	Choose(ctx context.Context, system, prompt string, choices []Choice) (string, error)
}

// Anthropic implements Client with the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *slog.Logger
}

// Config holds optional settings for NewAnthropic.
type Config struct {
	Model      string
	MaxTokens  int64
	BaseURL    string
	MaxRetries int
	Logger     *slog.Logger
}

// NewAnthropic creates a Messages API client.
func NewAnthropic(apiKey string, cfg Config) (*Anthropic, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	} else if cfg.MaxRetries < 0 {
		opts = append(opts, option.WithMaxRetries(0))
	}

	a := &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(DefaultModel),
		maxTokens: defaultMaxTokens,
		logger:    cfg.Logger,
	}
	if cfg.Model != "" {
		a.model = anthropic.Model(cfg.Model)
	}
	if cfg.MaxTokens > 0 {
		a.maxTokens = cfg.MaxTokens
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

func (a *Anthropic) params(system, prompt string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(0),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (a *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	message, err := a.client.Messages.New(ctx, a.params(system, prompt))
	if err != nil {
		a.logger.Error("Model call failed", "error", err, "model", a.model)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	responseText := ""
	for _, block := range message.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			responseText += textBlock.Text
		}
	}
	if responseText == "" {
		return "", ErrEmptyResponse
	}

	a.logger.Debug("Model call completed",
		"model", a.model,
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
		"elapsed", time.Since(start))
	return responseText, nil
}

func (a *Anthropic) Choose(ctx context.Context, system, prompt string, choices []Choice) (string, error) {
	if len(choices) == 0 {
		return "", fmt.Errorf("%w: no choices offered", ErrNoChoice)
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(choices))
	for _, c := range choices {
		tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: map[string]any{},
		}, c.Name)
		tool.OfTool.Description = anthropic.String(c.Description)
		tools = append(tools, tool)
	}

	params := a.params(system, prompt)
	params.Tools = tools
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: anthropic.Bool(true)},
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		a.logger.Error("Model choice failed", "error", err, "model", a.model)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if toolUse, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			return toolUse.Name, nil
		}
	}
	return "", ErrNoChoice
}
