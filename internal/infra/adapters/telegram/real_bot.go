package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/application"
	"telegram-llm-bot/internal/config"
	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/infra/i18n"
	"telegram-llm-bot/internal/infra/metrics"
	red "telegram-llm-bot/internal/infra/redis"
)

const maxPhotoBytes = 10 << 20

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// RealTelegramBotAdapter uses tgbotapi to poll updates and delegates to BotFacade.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	facade      *application.BotFacade
	translator  *i18n.Translator
	rateLimiter *red.RateLimiter
	log         *zerolog.Logger

	adminIDsMap   map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(
	cfg *config.BotConfig,
	translator *i18n.Translator,
	rateLimiter *red.RateLimiter,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if translator == nil {
		return nil, errors.New("translator is nil")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	adminMap := map[int64]struct{}{}
	for _, id := range cfg.AdminIDs {
		adminMap[id] = struct{}{}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		translator:    translator,
		rateLimiter:   rateLimiter,
		log:           logger,
		adminIDsMap:   adminMap,
		updateWorkers: workers,
	}, nil
}

// AttachFacade binds the application layer. The adapter is constructed first
// because the access usecase needs it for channel membership checks; the
// facade must be attached before polling starts.
func (r *RealTelegramBotAdapter) AttachFacade(facade *application.BotFacade) {
	r.facade = facade
}

func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.facade == nil {
		return errors.New("bot facade not attached")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := r.handleUpdate(ctx, up); err != nil {
						r.log.Error().Err(err).Int("worker", id).Msg("update handling failed")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	message := update.Message
	if message == nil || message.From == nil {
		return nil
	}
	userID := message.From.ID
	lang := langOf(message.From)

	command := "message"
	if message.IsCommand() {
		command = "/" + message.Command()
	}
	if r.rateLimiter != nil {
		allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(userID, command), 20, time.Minute)
		if err != nil {
			r.log.Warn().Err(err).Int64("tg_id", userID).Msg("rate limiter unavailable")
		} else if !allowed {
			metrics.IncRateLimitTriggered()
			return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_rate_limited"))
		}
	}

	if message.IsCommand() {
		if fn, ok := r.commandRoutes()[message.Command()]; ok {
			metrics.IncTelegramCommand("/" + message.Command())
			return fn(ctx, message)
		}
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "help_text"))
	}

	if len(message.Photo) > 0 {
		return r.handlePhotoMessage(ctx, message)
	}
	if strings.TrimSpace(message.Text) == "" {
		return nil
	}
	return r.handleTextMessage(ctx, message)
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	if chatID == 0 {
		return nil
	}

	data := strings.TrimSpace(query.Data)
	lang := langOf(query.From)

	if r.rateLimiter != nil {
		if allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(query.From.ID, "callback"), 30, time.Minute); err == nil && !allowed {
			metrics.IncRateLimitTriggered()
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_rate_limited"))
		}
	}

	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, query.From.ID, chatID, lang, data)
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, query.From.ID, chatID, lang, strings.TrimPrefix(data, pr.Prefix))
		}
	}
	r.log.Warn().Str("data", data).Msg("unknown callback data")
	return nil
}

// SendMessage implements the adapter port.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, telegramID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(telegramID, text)
	_, err := r.bot.Send(msg)
	return err
}

// SendButtons sends a message with inline buttons.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kbRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			var kb tgbotapi.InlineKeyboardButton
			switch {
			case btn.URL != "":
				kb = tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL)
			case btn.Data != "":
				kb = tgbotapi.NewInlineKeyboardButtonData(label, btn.Data)
			default:
				kb = tgbotapi.NewInlineKeyboardButtonData(label, label)
			}
			kbRow = append(kbRow, kb)
		}
		kbRows = append(kbRows, kbRow)
	}

	msg := tgbotapi.NewMessage(telegramID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	_, err := r.bot.Send(msg)
	return err
}

// SendPhotoURL posts a photo by URL; Telegram fetches the file itself.
func (r *RealTelegramBotAdapter) SendPhotoURL(ctx context.Context, telegramID int64, url string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewPhoto(telegramID, tgbotapi.FileURL(url))
	_, err := r.bot.Send(msg)
	return err
}

// SendAudio uploads generated speech as an audio file.
func (r *RealTelegramBotAdapter) SendAudio(ctx context.Context, telegramID int64, name string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewAudio(telegramID, tgbotapi.FileBytes{Name: name, Bytes: data})
	_, err := r.bot.Send(msg)
	return err
}

// IsChannelMember asks Telegram for the user's membership in the channel.
func (r *RealTelegramBotAdapter) IsChannelMember(ctx context.Context, channel string, telegramID int64) (bool, error) {
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	member, err := r.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: channel,
			UserID:             telegramID,
		},
	})
	if err != nil {
		return false, err
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	}
	return false, nil
}

// SetMenuCommands installs the command menu for the chat; admins get the
// management commands appended.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Restart the bot"},
		{Command: "help", Description: "How to use the bot"},
		{Command: "profile", Description: "Balance and settings"},
		{Command: "models", Description: "Choose an AI model"},
		{Command: "agents", Description: "Manage agents"},
		{Command: "invite", Description: "Your invite link"},
		{Command: "reset", Description: "Clear the conversation"},
		{Command: "image", Description: "Generate an image"},
		{Command: "audio", Description: "Text to speech"},
		{Command: "buy", Description: "Buy tokens"},
		{Command: "cancel", Description: "Abort the current dialog"},
	}
	if isAdmin {
		commands = append(commands,
			tgbotapi.BotCommand{Command: "stats", Description: "Usage statistics"},
			tgbotapi.BotCommand{Command: "send_all", Description: "Broadcast a message"},
			tgbotapi.BotCommand{Command: "grant", Description: "Grant access"},
		)
	}
	scope := tgbotapi.NewBotCommandScopeChat(chatID)
	_, err := r.bot.Request(tgbotapi.NewSetMyCommandsWithScope(scope, commands...))
	return err
}

// errorText maps domain errors to a localized reply.
func (r *RealTelegramBotAdapter) errorText(lang string, err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return r.translator.T(lang, "error_insufficient_balance")
	case errors.Is(err, domain.ErrUserLocked):
		return r.translator.T(lang, "error_busy")
	case errors.Is(err, adapter.ErrNotSupported):
		return r.translator.T(lang, "error_model_not_supported")
	case errors.Is(err, domain.ErrAgentNotFound):
		return r.translator.T(lang, "error_agent_not_found")
	default:
		return r.translator.T(lang, "error_generic")
	}
}

// sendAccessGate tells a gated-out user how to unlock the bot under the
// configured policy.
func (r *RealTelegramBotAdapter) sendAccessGate(ctx context.Context, userID, chatID int64, lang string) error {
	if r.facade.AccessUC.Policy() == "channel" {
		rows := [][]adapter.InlineButton{
			{{Text: r.translator.T(lang, "button_check_subscription"), Data: "sub:check"}},
		}
		return r.SendButtons(ctx, chatID, r.translator.T(lang, "error_not_subscribed", r.cfg.Channel), rows)
	}

	threshold := r.facade.AccessUC.ReferralThreshold()
	link := r.facade.AccessUC.InviteLink(userID)
	text := r.translator.T(lang, "start_access_needed", threshold, link)
	if user, err := r.facade.UserUC.Get(ctx, userID); err == nil {
		text += "\n" + r.translator.T(lang, "referral_progress", len(user.InvitedUsers), threshold)
	}
	return r.SendMessage(ctx, chatID, text)
}

// downloadPhoto fetches the largest rendition of a photo message.
func (r *RealTelegramBotAdapter) downloadPhoto(ctx context.Context, photos []tgbotapi.PhotoSize) ([]byte, error) {
	if len(photos) == 0 {
		return nil, errors.New("empty photo set")
	}
	fileID := photos[len(photos)-1].FileID
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}

func (r *RealTelegramBotAdapter) sendTyping(chatID int64) {
	_, _ = r.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func langOf(from *tgbotapi.User) string {
	if from == nil {
		return ""
	}
	return from.LanguageCode
}
