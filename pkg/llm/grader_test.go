package llm_test

import (
	"testing"
	"time"

	"github.com/resumatch/cvscreen/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var graderConfig = llm.GraderConfig{
	Model:       "mistral",
	Temperature: 0.2,
	MaxTokens:   1000,
	BaseURL:     "http://localhost:11434",
	RateLimit:   2,
	Timeout:     30 * time.Second,
}

func TestNewGraderWithConfig(t *testing.T) {
	grader, err := llm.NewGraderWithConfig(graderConfig)
	require.NoError(t, err)
	assert.NotNil(t, grader)
}

func TestNewGraderDefaults(t *testing.T) {
	// A zero config is valid: every field has a default.
	grader, err := llm.NewGraderWithConfig(llm.GraderConfig{})
	require.NoError(t, err)
	assert.NotNil(t, grader)
}

func TestNewGraderInvalidTemperature(t *testing.T) {
	config := graderConfig
	config.Temperature = 3.0

	_, err := llm.NewGraderWithConfig(config)
	assert.ErrorContains(t, err, "temperature must be between 0 and 2")
}

func TestNewGraderNegativeMaxTokens(t *testing.T) {
	config := graderConfig
	config.MaxTokens = -5

	_, err := llm.NewGraderWithConfig(config)
	assert.ErrorContains(t, err, "max tokens cannot be negative")
}
