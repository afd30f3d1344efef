package ai

import (
	"context"

	"telegram-llm-bot/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI bounds concurrent provider calls with a semaphore.
type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return l.inner.CountTokens(ctx, model, messages)
}

func (l *limitedAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, model, messages)
}

func (l *limitedAI) ReadImage(ctx context.Context, model string, image []byte) (string, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.ReadImage(ctx, model, image)
}

func (l *limitedAI) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.GenerateImage(ctx, model, prompt)
}

func (l *limitedAI) TextToSpeech(ctx context.Context, model, text string) ([]byte, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.TextToSpeech(ctx, model, text)
}
