package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":   r.handleStartCommand,
		"help":    r.handleHelpCommand,
		"profile": r.handleProfileCommand,
		"balance": r.handleProfileCommand, // kept as an alias
		"models":  r.handleModelsCommand,
		"agents":  r.handleAgentsCommand,
		"reset":   r.handleResetCommand,
		"invite":  r.handleInviteCommand,
		"image":   r.handleImageCommand,
		"audio":   r.handleAudioCommand,
		"buy":     r.handleBuyCommand,
		"cancel":  r.handleCancelCommand,

		// These handlers are wrapped in our adminOnly middleware.
		"send_all":                 r.adminOnly(r.handleBroadcastCommand),
		"send_update_notification": r.adminOnly(r.handleUpdateNotificationCommand),
		"stats":                    r.adminOnly(r.handleStatsCommand),
		"grant":                    r.adminOnly(r.handleGrantCommand),
	}
}

// adminOnly silently ignores management commands from regular users.
func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if _, isAdmin := r.adminIDsMap[message.From.ID]; !isAdmin {
			lang := langOf(message.From)
			return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "help_text"))
		}
		return next(ctx, message)
	}
}

// handleStartCommand registers the user and applies the invite payload.
func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	res, err := r.facade.HandleStart(ctx, message.From.ID, message.From.UserName, lang, message.CommandArguments())
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", message.From.ID).Msg("start failed")
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_generic"))
	}

	_, isAdmin := r.adminIDsMap[message.From.ID]
	if err := r.SetMenuCommands(ctx, message.Chat.ID, isAdmin); err != nil {
		r.log.Warn().Err(err).Int64("tg_id", message.From.ID).Msg("failed to set menu commands")
	}

	if res.Referral != nil {
		r.notifyInviter(ctx, res.InviterID, message.From, res.Referral.Bonus)
	}

	ok, err := r.facade.AccessUC.Check(ctx, res.User)
	if err != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_generic"))
	}
	if !ok {
		return r.sendAccessGate(ctx, message.From.ID, message.Chat.ID, lang)
	}

	name := message.From.FirstName
	if name == "" {
		name = message.From.UserName
	}
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "start_greeting", name, res.User.CurrentModel))
}

// notifyInviter tells the inviter about the bonus, in the inviter's language.
func (r *RealTelegramBotAdapter) notifyInviter(ctx context.Context, inviterID int64, invitee *tgbotapi.User, bonus int64) {
	inviter, err := r.facade.UserUC.Get(ctx, inviterID)
	if err != nil {
		return
	}
	name := invitee.FirstName
	if name == "" {
		name = invitee.UserName
	}
	text := r.translator.T(inviter.LanguageCode, "referral_joined", name, bonus)
	if err := r.SendMessage(ctx, inviterID, text); err != nil {
		r.log.Warn().Err(err).Int64("tg_id", inviterID).Msg("failed to notify inviter")
	}
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T(langOf(message.From), "help_text"))
}

func (r *RealTelegramBotAdapter) handleProfileCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	user, err := r.facade.UserUC.Get(ctx, message.From.ID)
	if err != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_generic"))
	}
	text := r.translator.T(lang, "balance_status", user.Balance, user.CurrentModel, user.Tariff)
	return r.SendMessage(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleInviteCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	link := r.facade.AccessUC.InviteLink(message.From.ID)
	text := r.translator.T(lang, "invite_text", link)

	policy := r.facade.AccessUC.Policy()
	if policy == "referral" || policy == "sticky" {
		if user, err := r.facade.UserUC.Get(ctx, message.From.ID); err == nil {
			threshold := r.facade.AccessUC.ReferralThreshold()
			text += "\n" + r.translator.T(lang, "referral_progress", len(user.InvitedUsers), threshold)
		}
	}
	return r.SendMessage(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleModelsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendModelMenu(ctx, message.From.ID, message.Chat.ID, langOf(message.From))
}

func (r *RealTelegramBotAdapter) handleAgentsCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendAgentsMenu(ctx, message.Chat.ID, langOf(message.From))
}

func (r *RealTelegramBotAdapter) handleResetCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	if err := r.facade.ChatUC.Reset(ctx, message.From.ID); err != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.errorText(lang, err))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "reset_done"))
}

func (r *RealTelegramBotAdapter) handleImageCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	prompt := strings.TrimSpace(message.CommandArguments())
	if prompt == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "usage_image"))
	}

	_ = r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "image_generating"))
	url, err := r.facade.HandleGenerateImage(ctx, message.From.ID, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrAccessDenied) {
			return r.sendAccessGate(ctx, message.From.ID, message.Chat.ID, lang)
		}
		r.log.Error().Err(err).Int64("tg_id", message.From.ID).Msg("image generation failed")
		if errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrUserLocked) {
			return r.SendMessage(ctx, message.Chat.ID, r.errorText(lang, err))
		}
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "image_failed"))
	}
	return r.SendPhotoURL(ctx, message.Chat.ID, url)
}

func (r *RealTelegramBotAdapter) handleAudioCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	text := strings.TrimSpace(message.CommandArguments())
	if text == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "usage_audio"))
	}

	_ = r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "audio_generating"))
	data, err := r.facade.HandleTextToSpeech(ctx, message.From.ID, text)
	if err != nil {
		if errors.Is(err, domain.ErrAccessDenied) {
			return r.sendAccessGate(ctx, message.From.ID, message.Chat.ID, lang)
		}
		r.log.Error().Err(err).Int64("tg_id", message.From.ID).Msg("speech generation failed")
		if errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrUserLocked) {
			return r.SendMessage(ctx, message.Chat.ID, r.errorText(lang, err))
		}
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "audio_failed"))
	}
	return r.SendAudio(ctx, message.Chat.ID, "speech.mp3", data)
}

func (r *RealTelegramBotAdapter) handleBuyCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendBuyMenu(ctx, message.Chat.ID, langOf(message.From))
}

// handleCancelCommand aborts any multi-step dialog in progress.
func (r *RealTelegramBotAdapter) handleCancelCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	state, err := r.facade.States.GetState(ctx, message.From.ID)
	if err != nil || state == nil {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "nothing_to_cancel"))
	}
	if err := r.facade.States.ClearState(ctx, message.From.ID); err != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_generic"))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "cancelled"))
}

func (r *RealTelegramBotAdapter) handleBroadcastCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	text := strings.TrimSpace(message.CommandArguments())
	if text == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "usage_broadcast"))
	}
	queued, err := r.facade.BroadcastUC.BroadcastMessage(ctx, text)
	if err != nil {
		r.log.Error().Err(err).Msg("broadcast failed")
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_generic"))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "broadcast_started", queued))
}

// handleUpdateNotificationCommand nudges users still behind the access gate,
// in their own language. Under the channel policy the message carries
// subscribe and re-check buttons.
func (r *RealTelegramBotAdapter) handleUpdateNotificationCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	policy := r.facade.AccessUC.Policy()
	channelURL := "https://t.me/" + strings.TrimPrefix(r.cfg.Channel, "@")

	queued, err := r.facade.BroadcastUC.NotifyUsersWithoutAccess(ctx, func(u *model.User) (string, [][]adapter.InlineButton) {
		userLang := u.LanguageCode
		if policy != "channel" {
			return r.translator.T(userLang, "update_notification"), nil
		}
		rows := [][]adapter.InlineButton{{
			{Text: r.translator.T(userLang, "button_subscribe"), URL: channelURL},
			{Text: r.translator.T(userLang, "button_check_subscription"), Data: "sub:check"},
		}}
		return r.translator.T(userLang, "error_not_subscribed", r.cfg.Channel), rows
	})
	if err != nil {
		r.log.Error().Err(err).Msg("update notification broadcast failed")
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_generic"))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "broadcast_started", queued))
}

func (r *RealTelegramBotAdapter) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	count, err := r.facade.UserUC.Count(ctx)
	if err != nil {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_generic"))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "stats_text", count))
}

func (r *RealTelegramBotAdapter) handleGrantCommand(ctx context.Context, message *tgbotapi.Message) error {
	lang := langOf(message.From)
	arg := strings.TrimSpace(message.CommandArguments())
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || userID <= 0 {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "usage_grant"))
	}
	if err := r.facade.AccessUC.Grant(ctx, userID); err != nil {
		r.log.Error().Err(err).Int64("tg_id", userID).Msg("grant failed")
		return r.SendMessage(ctx, message.Chat.ID, r.errorText(lang, err))
	}
	return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "grant_done", userID))
}

// sendModelMenu lists the known models as buttons, marking the active one.
func (r *RealTelegramBotAdapter) sendModelMenu(ctx context.Context, userID, chatID int64, lang string) error {
	models, err := r.facade.ChatUC.ListModels(ctx)
	if err != nil || len(models) == 0 {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}

	current := ""
	if user, err := r.facade.UserUC.Get(ctx, userID); err == nil {
		current = user.CurrentModel
	}

	rows := make([][]adapter.InlineButton, 0, len(models))
	for _, m := range models {
		label := m
		if m == current {
			label = r.translator.T(lang, "agent_active_mark", m)
		}
		rows = append(rows, []adapter.InlineButton{{Text: label, Data: "model:" + m}})
	}
	return r.SendButtons(ctx, chatID, r.translator.T(lang, "models_header"), rows)
}

func (r *RealTelegramBotAdapter) sendAgentsMenu(ctx context.Context, chatID int64, lang string) error {
	rows := [][]adapter.InlineButton{
		{{Text: r.translator.T(lang, "button_agents_list"), Data: "agents:list"}},
		{{Text: r.translator.T(lang, "button_agent_create"), Data: "agents:create"}},
	}
	return r.SendButtons(ctx, chatID, r.translator.T(lang, "agents_menu_header"), rows)
}

func (r *RealTelegramBotAdapter) sendAgentsList(ctx context.Context, userID, chatID int64, lang string) error {
	user, err := r.facade.UserUC.Get(ctx, userID)
	if err != nil {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}
	if len(user.CustomAgents) == 0 {
		rows := [][]adapter.InlineButton{
			{{Text: r.translator.T(lang, "button_agent_create"), Data: "agents:create"}},
		}
		return r.SendButtons(ctx, chatID, r.translator.T(lang, "agents_empty"), rows)
	}

	rows := make([][]adapter.InlineButton, 0, len(user.CustomAgents)+1)
	for _, a := range user.CustomAgents {
		label := a.Name
		if user.CurrentAgentID != nil && *user.CurrentAgentID == a.AgentID {
			label = r.translator.T(lang, "agent_active_mark", a.Name)
		}
		rows = append(rows, []adapter.InlineButton{{Text: label, Data: "agent:manage:" + a.AgentID}})
	}
	rows = append(rows, []adapter.InlineButton{
		{Text: r.translator.T(lang, "button_agent_default"), Data: "agent:default"},
	})
	return r.SendButtons(ctx, chatID, r.translator.T(lang, "agents_list_header"), rows)
}

func (r *RealTelegramBotAdapter) sendBuyMenu(ctx context.Context, chatID int64, lang string) error {
	packs := r.facade.BillingUC.Packs()
	if len(packs) == 0 {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}
	currency := r.facade.BillingUC.Currency()
	rows := make([][]adapter.InlineButton, 0, len(packs))
	for i, p := range packs {
		label := r.translator.T(lang, "button_pay", p.Tokens, formatAmount(p.Amount, currency))
		rows = append(rows, []adapter.InlineButton{{Text: label, Data: "pay:" + strconv.Itoa(i)}})
	}
	return r.SendButtons(ctx, chatID, r.translator.T(lang, "buy_header"), rows)
}

// formatAmount renders a minor-unit amount as "1.99 USD".
func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}
