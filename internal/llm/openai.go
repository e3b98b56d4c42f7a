package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ChatProvider calls an OpenAI-compatible chat completions endpoint. Both
// DeepSeek and DashScope (Qwen) expose this surface.
type ChatProvider struct {
	name      string
	model     string
	baseURL   string
	apiKeyEnv string
	client    *http.Client
}

// NewChatProvider configures a provider for {baseURL}/chat/completions.
// The API key is read from the named environment variable at call time.
func NewChatProvider(name, model, baseURL, apiKeyEnv string, timeout time.Duration) *ChatProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatProvider{
		name:      name,
		model:     model,
		baseURL:   baseURL,
		apiKeyEnv: apiKeyEnv,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (p *ChatProvider) Name() string { return p.name }

// Model implements Provider.
func (p *ChatProvider) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete implements Provider.
func (p *ChatProvider) Complete(ctx context.Context, req Request) (Response, error) {
	apiKey := os.Getenv(p.apiKeyEnv)
	if apiKey == "" {
		return Response{}, fmt.Errorf("llm: %s: environment variable %s is not set", p.name, p.apiKeyEnv)
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: %s: encode request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llm: %s: build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, Transientf("llm: %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, Transientf("llm: %s: read response: %w", p.name, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Response{}, Transientf("llm: %s: status %d", p.name, resp.StatusCode)
	default:
		return Response{}, fmt.Errorf("llm: %s: status %d: %s", p.name, resp.StatusCode, truncate(string(payload), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Response{}, fmt.Errorf("llm: %s: decode response: %w", p.name, err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("llm: %s: %s", p.name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("llm: %s: empty choices", p.name)
	}
	return Response{Text: parsed.Choices[0].Message.Content, Model: p.model}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
