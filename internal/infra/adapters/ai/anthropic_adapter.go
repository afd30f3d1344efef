package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"telegram-llm-bot/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*AnthropicAdapter)(nil)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter implements adapter.AIServiceAdapter against the Messages
// API. A leading system-role message is lifted into the top-level system
// field; image generation and speech are not offered by this provider.
type AnthropicAdapter struct {
	apiKey    string
	base      string // e.g., https://api.anthropic.com/v1
	models    []string
	maxTokens int
	client    *http.Client
}

func NewAnthropicAdapter(apiKey, base string, models []string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key empty")
	}
	if base == "" {
		base = "https://api.anthropic.com/v1"
	}
	return &AnthropicAdapter{
		apiKey:    apiKey,
		base:      strings.TrimRight(base, "/"),
		models:    models,
		maxTokens: 2048,
		client:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]string, error) {
	return a.models, nil
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// splitSystem separates an optional leading system message from the turns.
func splitSystem(messages []adapter.Message) (string, []anthropicMessage) {
	var system string
	out := make([]anthropicMessage, 0, len(messages))
	for i, m := range messages {
		if i == 0 && m.Role == "system" {
			system = m.Content
			continue
		}
		out = append(out, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return system, out
}

func (a *AnthropicAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	system, msgs := splitSystem(messages)
	reqBody := struct {
		Model    string             `json:"model"`
		System   string             `json:"system,omitempty"`
		Messages []anthropicMessage `json:"messages"`
	}{Model: model, System: system, Messages: msgs}

	var payload struct {
		InputTokens int `json:"input_tokens"`
	}
	if err := a.post(ctx, "/messages/count_tokens", reqBody, &payload); err != nil {
		return 0, err
	}
	return payload.InputTokens, nil
}

func (a *AnthropicAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	system, msgs := splitSystem(messages)
	reqBody := struct {
		Model     string             `json:"model"`
		MaxTokens int                `json:"max_tokens"`
		System    string             `json:"system,omitempty"`
		Messages  []anthropicMessage `json:"messages"`
	}{Model: model, MaxTokens: a.maxTokens, System: system, Messages: msgs}

	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := a.post(ctx, "/messages", reqBody, &payload); err != nil {
		return "", err
	}
	for _, c := range payload.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}

func (a *AnthropicAdapter) ReadImage(ctx context.Context, model string, image []byte) (string, error) {
	content := []map[string]interface{}{
		{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": "image/jpeg",
				"data":       base64.StdEncoding.EncodeToString(image),
			},
		},
		{
			"type": "text",
			"text": "Describe this image and answer any question it contains.",
		},
	}
	reqBody := struct {
		Model     string             `json:"model"`
		MaxTokens int                `json:"max_tokens"`
		Messages  []anthropicMessage `json:"messages"`
	}{
		Model:     model,
		MaxTokens: a.maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: content}},
	}

	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := a.post(ctx, "/messages", reqBody, &payload); err != nil {
		return "", err
	}
	for _, c := range payload.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}

func (a *AnthropicAdapter) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	return "", adapter.ErrNotSupported
}

func (a *AnthropicAdapter) TextToSpeech(ctx context.Context, model, text string) ([]byte, error) {
	return nil, adapter.ErrNotSupported
}

func (a *AnthropicAdapter) post(ctx context.Context, path string, reqBody, out interface{}) error {
	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("anthropic http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
