package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

const defaultSystemPrompt = "You are an HR assistant."

// GraderConfig represents the configuration for the grading engine.
type GraderConfig struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	BaseURL      string // Ollama server URL
	RateLimit    float64
	Timeout      time.Duration
}

// Grader asks the generative model to evaluate one candidate against a stated
// job need. Calls are rate limited and bounded by a per-call timeout.
type Grader struct {
	config  GraderConfig
	llm     llms.Model
	limiter *rate.Limiter
}

// NewGraderWithConfig creates a new Grader with the given configuration.
func NewGraderWithConfig(config GraderConfig) (*Grader, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Grader{
		config:  config,
		llm:     llm,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Generate sends the prompt as the user turn and returns the raw completion.
func (g *Grader) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, g.config.SystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	response, err := g.llm.GenerateContent(ctx, content,
		llms.WithTemperature(g.config.Temperature),
		llms.WithMaxTokens(g.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("grading call failed: %w", err)
	}

	var builder strings.Builder
	for _, choice := range response.Choices {
		if choice != nil && choice.Content != "" {
			builder.WriteString(choice.Content)
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("model returned an empty response")
	}

	return text, nil
}
