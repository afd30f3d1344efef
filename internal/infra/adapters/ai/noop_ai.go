package ai

import (
	"context"
	"time"

	"telegram-llm-bot/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev testing.
// It returns canned responses instead of calling real providers.
type NoopAIAdapter struct {
	Reply string
}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{Reply: "This is a noop AI response."}
}

func (a *NoopAIAdapter) wait(ctx context.Context) error {
	select {
	case <-time.After(50 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-model"}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	if err := a.wait(ctx); err != nil {
		return "", err
	}
	return a.Reply, nil
}

func (a *NoopAIAdapter) ReadImage(ctx context.Context, model string, image []byte) (string, error) {
	if err := a.wait(ctx); err != nil {
		return "", err
	}
	return a.Reply, nil
}

func (a *NoopAIAdapter) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	if err := a.wait(ctx); err != nil {
		return "", err
	}
	return "https://example.invalid/noop.png", nil
}

func (a *NoopAIAdapter) TextToSpeech(ctx context.Context, model, text string) ([]byte, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return []byte("noop-mp3"), nil
}
