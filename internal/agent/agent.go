package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
)

const (
	defaultModel    = "claude-haiku-4-5"
	defaultMaxSteps = 25
)

// ErrEmptyAnswer is returned when the agent finishes without any text.
var ErrEmptyAnswer = errors.New("agent returned no text")

// Runner drives a tool-using model until it produces a final answer.
type Runner interface {
	Run(ctx context.Context, system, prompt string, tools *Toolset) (string, error)
}

// AgentConfig holds the configuration for creating a Runner
type AgentConfig struct {
	apiKey   string
	model    string
	maxSteps int
	logger   *slog.Logger
}

// AgentOption is a functional option for configuring the agent
type AgentOption func(*AgentConfig) error

// WithAPIKey sets the Anthropic API key
func WithAPIKey(apiKey string) AgentOption {
	return func(c *AgentConfig) error {
		if apiKey == "" {
			return fmt.Errorf("API key cannot be empty")
		}
		c.apiKey = apiKey
		return nil
	}
}

// WithAPIKeyFromEnv sets the API key from the ANTHROPIC_API_KEY environment variable
func WithAPIKeyFromEnv() AgentOption {
	return func(c *AgentConfig) error {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		c.apiKey = apiKey
		return nil
	}
}

// WithModel sets the Claude model to use (default: claude-haiku-4-5)
func WithModel(model string) AgentOption {
	return func(c *AgentConfig) error {
		if model == "" {
			return fmt.Errorf("model cannot be empty")
		}
		c.model = model
		return nil
	}
}

// WithMaxSteps bounds the number of model steps in one run
func WithMaxSteps(n int) AgentOption {
	return func(c *AgentConfig) error {
		if n <= 0 {
			return fmt.Errorf("max steps must be positive, got %d", n)
		}
		c.maxSteps = n
		return nil
	}
}

// WithLogger sets the logger for run summaries
func WithLogger(logger *slog.Logger) AgentOption {
	return func(c *AgentConfig) error {
		c.logger = logger
		return nil
	}
}

// FantasyRunner runs the agent loop with fantasy on an Anthropic model.
type FantasyRunner struct {
	model    fantasy.LanguageModel
	maxSteps int
	logger   *slog.Logger
}

// NewRunner creates a Runner using the Options pattern
func NewRunner(ctx context.Context, opts ...AgentOption) (*FantasyRunner, error) {
	config := &AgentConfig{
		model:    defaultModel,
		maxSteps: defaultMaxSteps,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if config.apiKey == "" {
		return nil, fmt.Errorf("API key is required (use WithAPIKey or WithAPIKeyFromEnv)")
	}
	if config.logger == nil {
		config.logger = slog.Default()
	}

	provider, err := anthropic.New(anthropic.WithAPIKey(config.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
	}

	model, err := provider.LanguageModel(ctx, config.model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Claude model: %w", err)
	}

	return &FantasyRunner{
		model:    model,
		maxSteps: config.maxSteps,
		logger:   config.logger,
	}, nil
}

// Run builds a fantasy agent around tools and generates one answer.
func (r *FantasyRunner) Run(ctx context.Context, system, prompt string, tools *Toolset) (string, error) {
	start := time.Now()

	agent := fantasy.NewAgent(
		r.model,
		fantasy.WithSystemPrompt(system),
		fantasy.WithTools(tools.AgentTools()...),
		fantasy.WithStopConditions(fantasy.StepCountIs(r.maxSteps)),
	)

	result, err := agent.Generate(ctx, fantasy.AgentCall{Prompt: prompt})
	if fault := tools.Fault(); fault != nil {
		return "", fault
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	text := result.Response.Content.Text()
	r.logger.Info("Agent run completed",
		"tool_calls", len(tools.Calls()),
		"elapsed", time.Since(start))

	if text == "" {
		return "", ErrEmptyAnswer
	}
	return text, nil
}
