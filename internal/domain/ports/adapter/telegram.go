package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
	SendPhotoURL(ctx context.Context, telegramID int64, url string) error
	SendAudio(ctx context.Context, telegramID int64, name string, data []byte) error

	// IsChannelMember reports whether the user currently belongs to the given
	// channel; used by the channel access policy on every gated action.
	IsChannelMember(ctx context.Context, channel string, telegramID int64) (bool, error)
}
