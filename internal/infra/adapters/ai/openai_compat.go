package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"telegram-llm-bot/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAICompatAdapter)(nil)

// OpenAICompatAdapter implements adapter.AIServiceAdapter against any
// OpenAI-compatible Chat Completions gateway. OpenAI itself, Together and xAI
// all speak this dialect; only the base URL, key and model list differ.
type OpenAICompatAdapter struct {
	provider   string
	apiKey     string
	base       string // e.g., https://api.openai.com/v1
	models     []string
	imageModel string
	ttsModel   string
	ttsVoice   string
	client     *http.Client
}

// Option mutators keep the constructor short for providers without
// image or speech endpoints.
type CompatOption func(*OpenAICompatAdapter)

func WithImageModel(model string) CompatOption {
	return func(a *OpenAICompatAdapter) { a.imageModel = model }
}

func WithTTS(model, voice string) CompatOption {
	return func(a *OpenAICompatAdapter) { a.ttsModel, a.ttsVoice = model, voice }
}

func NewOpenAICompatAdapter(provider, apiKey, base string, models []string, opts ...CompatOption) (*OpenAICompatAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s api key empty", provider)
	}
	if base == "" {
		return nil, fmt.Errorf("%s base url empty", provider)
	}
	a := &OpenAICompatAdapter{
		provider: provider,
		apiKey:   apiKey,
		base:     strings.TrimRight(base, "/"),
		models:   models,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

func (o *OpenAICompatAdapter) ListModels(ctx context.Context) ([]string, error) {
	return o.models, nil
}

// CountTokens encodes the message texts with tiktoken. Models unknown to the
// tokenizer fall back to cl100k_base, which is close enough for budgeting.
func (o *OpenAICompatAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return 0, err
		}
	}
	total := 0
	for _, m := range messages {
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

func (o *OpenAICompatAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reqBody := struct {
		Model    string            `json:"model"`
		Messages []adapter.Message `json:"messages"`
	}{Model: model, Messages: messages}

	var payload struct {
		Choices []struct {
			Message adapter.Message `json:"message"`
		} `json:"choices"`
	}
	if err := o.post(ctx, "/chat/completions", reqBody, &payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}

func (o *OpenAICompatAdapter) ReadImage(ctx context.Context, model string, image []byte) (string, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	type contentPart struct {
		Type     string `json:"type"`
		Text     string `json:"text,omitempty"`
		ImageURL *struct {
			URL string `json:"url"`
		} `json:"image_url,omitempty"`
	}
	imagePart := contentPart{Type: "image_url"}
	imagePart.ImageURL = &struct {
		URL string `json:"url"`
	}{URL: dataURL}

	reqBody := struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string        `json:"role"`
			Content []contentPart `json:"content"`
		} `json:"messages"`
	}{
		Model: model,
		Messages: []struct {
			Role    string        `json:"role"`
			Content []contentPart `json:"content"`
		}{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: "Describe this image and answer any question it contains."},
				imagePart,
			},
		}},
	}

	var payload struct {
		Choices []struct {
			Message adapter.Message `json:"message"`
		} `json:"choices"`
	}
	if err := o.post(ctx, "/chat/completions", reqBody, &payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}

func (o *OpenAICompatAdapter) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = o.imageModel
	}
	if model == "" {
		return "", adapter.ErrNotSupported
	}
	reqBody := struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		N      int    `json:"n"`
	}{Model: model, Prompt: prompt, N: 1}

	var payload struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := o.post(ctx, "/images/generations", reqBody, &payload); err != nil {
		return "", err
	}
	if len(payload.Data) == 0 || payload.Data[0].URL == "" {
		return "", errors.New("no image url in response")
	}
	return payload.Data[0].URL, nil
}

func (o *OpenAICompatAdapter) TextToSpeech(ctx context.Context, model, text string) ([]byte, error) {
	if model == "" {
		model = o.ttsModel
	}
	if model == "" {
		return nil, adapter.ErrNotSupported
	}
	reqBody := struct {
		Model  string `json:"model"`
		Input  string `json:"input"`
		Voice  string `json:"voice"`
		Format string `json:"response_format"`
	}{Model: model, Input: text, Voice: o.ttsVoice, Format: "mp3"}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/audio/speech", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s http %d", o.provider, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (o *OpenAICompatAdapter) post(ctx context.Context, path string, reqBody, out interface{}) error {
	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s http %d", o.provider, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
