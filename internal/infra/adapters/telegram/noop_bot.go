package telegram

import (
	"context"
	"log"
	"time"

	"telegram-llm-bot/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local/dev testing.
// It logs messages instead of sending real Telegram messages.
type NoopBotAdapter struct{}

func NewNoopBotAdapter() *NoopBotAdapter {
	return &NoopBotAdapter{}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Printf("[noop-telegram] To user %d: %s\n", tgID, text)
	return nil
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Printf("[noop-telegram] To user %d: %s [buttons: %v]\n", tgID, text, rows)
	return nil
}

func (b *NoopBotAdapter) SendPhotoURL(ctx context.Context, tgID int64, url string) error {
	log.Printf("[noop-telegram] To user %d: photo %s\n", tgID, url)
	return nil
}

func (b *NoopBotAdapter) SendAudio(ctx context.Context, tgID int64, name string, data []byte) error {
	log.Printf("[noop-telegram] To user %d: audio %s (%d bytes)\n", tgID, name, len(data))
	return nil
}

// IsChannelMember always reports membership so local runs are never gated.
func (b *NoopBotAdapter) IsChannelMember(ctx context.Context, channel string, tgID int64) (bool, error) {
	return true, nil
}
