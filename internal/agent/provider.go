package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/TheSmartAz/zaoya-sub001/internal/build"
	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// OpenAIGenerator is a TextGenerator over an OpenAI-compatible chat
// completions endpoint
type OpenAIGenerator struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIGenerator creates a generator for an OpenAI-compatible API.
// baseURL defaults to the OpenAI endpoint when empty.
func NewOpenAIGenerator(apiKey, baseURL, model string, timeout time.Duration) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "api key is required").
			WithSuggestion("set ZAOYA_API_KEY or pass --api-key")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIGenerator{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate implements TextGenerator
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeAgentTimeout, "generation cancelled", err)
		}
		return nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "generation request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "failed to read response", err)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "failed to decode response", err)
	}
	if out.Error != nil {
		return nil, errors.Newf(errors.ErrCodeAgentCallFailed, "provider error: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeAgentCallFailed, "provider returned status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeAgentCallFailed, "provider returned no choices")
	}

	model := out.Model
	if model == "" {
		model = g.model
	}
	return &Response{
		Content: out.Choices[0].Message.Content,
		Model:   model,
		Usage: build.TokenUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

// Name implements TextGenerator
func (g *OpenAIGenerator) Name() string {
	return g.model
}

// CommandGenerator runs an external command as the model: the request is
// written to stdin as JSON and stdout is taken as the completion. Useful
// for local models and scripted test harnesses.
type CommandGenerator struct {
	argv    []string
	timeout time.Duration
}

// NewCommandGenerator creates a command-backed generator
func NewCommandGenerator(argv []string, timeout time.Duration) (*CommandGenerator, error) {
	if len(argv) == 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "agent command must not be empty")
	}
	return &CommandGenerator{argv: argv, timeout: timeout}, nil
}

// Generate implements TextGenerator
func (g *CommandGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	runCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAgentCallFailed, "failed to marshal request", err)
	}

	cmd := exec.CommandContext(runCtx, g.argv[0], g.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.ErrCodeAgentTimeout, "agent command timed out", err)
		}
		return nil, errors.Wrap(errors.ErrCodeAgentCallFailed,
			fmt.Sprintf("agent command failed: %s", strings.TrimSpace(stderr.String())), err)
	}

	content := stdout.String()
	return &Response{
		Content: content,
		Model:   "command:" + g.argv[0],
		Usage: build.TokenUsage{
			PromptTokens:     approximateTokens(req.System + req.Prompt),
			CompletionTokens: approximateTokens(content),
			TotalTokens:      approximateTokens(req.System+req.Prompt) + approximateTokens(content),
		},
	}, nil
}

// Name implements TextGenerator
func (g *CommandGenerator) Name() string {
	return "command:" + g.argv[0]
}

// approximateTokens estimates token counts for backends that report none
func approximateTokens(s string) int {
	return len(s) / 4
}
