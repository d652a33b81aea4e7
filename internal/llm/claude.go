package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	ClaudeAPIBaseURL   = "https://api.anthropic.com/v1"
	ClaudeVersion      = "2023-06-01"
	DefaultClaudeModel = "claude-3-5-sonnet-20241022"
	// MaxTokens caps a reply when GEN_MAX_TOKENS is unset; the Messages API requires a cap
	MaxTokens = 1000
)

// ClaudeClient generates with Anthropic's Messages API. There is no Anthropic embedding
// endpoint, so it only serves as GEN_PROVIDER.
type ClaudeClient struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewClaudeClient needs an API key; model, base URL and token cap have defaults
func NewClaudeClient(cfg Config) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	c := &ClaudeClient{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: cfg.timeoutOrDefault()},
	}
	if c.model == "" {
		c.model = DefaultClaudeModel
	}
	if c.baseURL == "" {
		c.baseURL = ClaudeAPIBaseURL
	}
	if c.maxTokens <= 0 {
		c.maxTokens = MaxTokens
	}
	return c, nil
}

// Generate puts the instruction in the system field and the question as the only user turn.
// Text blocks of the reply are concatenated.
func (c *ClaudeClient) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	req := claudeRequest{
		Model:       c.model,
		System:      system,
		Messages:    []claudeMessage{{Role: "user", Content: user}},
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": ClaudeVersion,
	}

	var out claudeResponse
	if err := postJSON(ctx, c.client, "Claude", c.baseURL+"/messages", headers, req, &out, nestedErrorMessage); err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	reply := strings.TrimSpace(text.String())
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
