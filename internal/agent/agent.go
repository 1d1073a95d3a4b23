// Package agent defines the planner, implementer and reviewer roles that
// drive a build, plus the text generation abstraction they speak through.
// The engine never talks to a model vendor directly; anything that can turn
// a prompt into text can back an agent.
package agent

import (
	"context"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
)

// TextGenerator produces a completion for a prompt. Implementations wrap a
// model API, a local process or a test stub.
type TextGenerator interface {
	// Generate returns the model output for the request. Implementations
	// must honor ctx cancellation.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backing model or provider for usage accounting
	Name() string
}

// Request is a single generation call
type Request struct {
	// System is the role instruction prepended to the conversation
	System string `json:"system"`
	// Prompt is the user-turn content
	Prompt string `json:"prompt"`
	// MaxTokens bounds the completion length; zero uses the provider default
	MaxTokens int `json:"max_tokens,omitempty"`
	// Temperature controls sampling randomness
	Temperature float64 `json:"temperature,omitempty"`
	// Metadata carries tracing attributes such as build and task ids
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Response is a completed generation call
type Response struct {
	Content string           `json:"content"`
	Model   string           `json:"model"`
	Usage   build.TokenUsage `json:"usage"`
}
