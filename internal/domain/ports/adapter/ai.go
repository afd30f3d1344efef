package adapter

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by providers for capabilities they do not offer
// (e.g. text-to-speech on Anthropic).
var ErrNotSupported = errors.New("operation not supported by this provider")

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// AIServiceAdapter is the port for LLM providers. A system prompt, when
// present, travels as a leading system-role message; providers that take it
// out of band (Anthropic) split it off internally.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)

	// CountTokens returns prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	// Chat returns only the assistant text.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// ReadImage answers a vision call over raw JPEG bytes.
	ReadImage(ctx context.Context, model string, image []byte) (string, error)

	// GenerateImage returns a URL to a generated image. An empty model picks
	// the provider's default image model.
	GenerateImage(ctx context.Context, model, prompt string) (string, error)

	// TextToSpeech renders text to audio bytes (mp3). An empty model picks
	// the provider's default speech model.
	TextToSpeech(ctx context.Context, model, text string) ([]byte, error)
}
