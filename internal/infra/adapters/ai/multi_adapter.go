// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"telegram-llm-bot/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

// MultiAIAdapter routes each call to the provider owning the model. The
// registry is built once at startup; there is no lazy construction behind it.
type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai"
	byProvider      map[string]adapter.AIServiceAdapter
	modelToProvider map[string]string // model -> provider
}

// NewMultiAIAdapter does not inject any default model; it only knows a default
// provider. Each provider adapter is responsible for its own defaults.
func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "claude"):
		return "anthropic"
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "grok"):
		return "xai"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"),
		strings.HasPrefix(l, "dall-e"), strings.HasPrefix(l, "tts"):
		return "openai"
	case strings.Contains(l, "llama"), strings.HasPrefix(l, "mistral"),
		strings.HasPrefix(l, "qwen"), strings.HasPrefix(l, "deepseek"):
		return "together"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) (adapter.AIServiceAdapter, error) {
	prov := m.resolveProvider(model)
	if a := m.byProvider[prov]; a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("no provider configured for model %q", model)
}

// Provider reports which provider would handle the model, for metrics labels.
func (m *MultiAIAdapter) Provider(model string) string {
	return m.resolveProvider(model)
}

func (m *MultiAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(m.modelToProvider)+4)

	// 1) models explicitly mapped in config
	for model := range m.modelToProvider {
		if _, ok := seen[model]; !ok {
			seen[model] = struct{}{}
			out = append(out, model)
		}
	}

	// 2) union of each provider's ListModels
	for _, a := range m.byProvider {
		list, _ := a.ListModels(ctx)
		for _, name := range list {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	// Map iteration order would shuffle the model menu between calls.
	sort.Strings(out)
	return out, nil
}

func (m *MultiAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a, err := m.pick(model)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	a, err := m.pick(model)
	if err != nil {
		return "", err
	}
	return a.Chat(ctx, model, messages)
}

func (m *MultiAIAdapter) ReadImage(ctx context.Context, model string, image []byte) (string, error) {
	a, err := m.pick(model)
	if err != nil {
		return "", err
	}
	return a.ReadImage(ctx, model, image)
}

func (m *MultiAIAdapter) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	a, err := m.pick(model)
	if err != nil {
		return "", err
	}
	return a.GenerateImage(ctx, model, prompt)
}

func (m *MultiAIAdapter) TextToSpeech(ctx context.Context, model, text string) ([]byte, error) {
	a, err := m.pick(model)
	if err != nil {
		return nil, err
	}
	return a.TextToSpeech(ctx, model, text)
}
