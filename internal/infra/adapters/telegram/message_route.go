package telegram

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/repository"
)

// handleTextMessage routes plain text either into a pending dialog step or
// into the chat flow.
func (r *RealTelegramBotAdapter) handleTextMessage(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	lang := langOf(message.From)

	state, err := r.facade.States.GetState(ctx, userID)
	if err != nil {
		r.log.Warn().Err(err).Int64("tg_id", userID).Msg("failed to read dialog state")
	}
	if state != nil {
		return r.handleDialogStep(ctx, message, state)
	}

	r.sendTyping(message.Chat.ID)
	reply, err := r.facade.HandleChatMessage(ctx, userID, message.Text)
	if err != nil {
		if errors.Is(err, domain.ErrAccessDenied) {
			return r.sendAccessGate(ctx, userID, message.Chat.ID, lang)
		}
		r.log.Error().Err(err).Int64("tg_id", userID).Msg("chat message failed")
		return r.SendMessage(ctx, message.Chat.ID, r.errorText(lang, err))
	}
	return r.SendMessage(ctx, message.Chat.ID, reply)
}

// handleDialogStep advances the agent creation/editing dialog.
func (r *RealTelegramBotAdapter) handleDialogStep(ctx context.Context, message *tgbotapi.Message, state *repository.ConversationState) error {
	userID := message.From.ID
	chatID := message.Chat.ID
	lang := langOf(message.From)
	text := strings.TrimSpace(message.Text)

	switch state.Step {
	case repository.StepCreatingAgentName:
		if utf8.RuneCountInString(text) > model.MaxAgentNameLength {
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_name_too_long", model.MaxAgentNameLength))
		}
		if text == "" {
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_name_prompt", model.MaxAgentNameLength))
		}
		state.Step = repository.StepCreatingAgentPrompt
		if state.Data == nil {
			state.Data = map[string]string{}
		}
		state.Data["name"] = text
		if err := r.facade.States.SetState(ctx, userID, state); err != nil {
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
		}
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_prompt_prompt", model.MaxAgentPromptLength))

	case repository.StepCreatingAgentPrompt:
		if utf8.RuneCountInString(text) > model.MaxAgentPromptLength {
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_prompt_too_long", model.MaxAgentPromptLength))
		}
		agent, err := r.facade.AgentUC.Create(ctx, userID, state.Data["name"], text)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_prompt_prompt", model.MaxAgentPromptLength))
			}
			_ = r.facade.States.ClearState(ctx, userID)
			if errors.Is(err, domain.ErrAgentLimitReached) {
				return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_limit_reached", model.MaxAgentsPerUser))
			}
			r.log.Error().Err(err).Int64("tg_id", userID).Msg("agent creation failed")
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
		}
		_ = r.facade.States.ClearState(ctx, userID)
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_created", agent.Name))

	case repository.StepEditingAgentName:
		if utf8.RuneCountInString(text) > model.MaxAgentNameLength {
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_name_too_long", model.MaxAgentNameLength))
		}
		if err := r.facade.AgentUC.Rename(ctx, userID, state.Data["agent_id"], text); err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_edit_name_prompt", model.MaxAgentNameLength))
			}
			_ = r.facade.States.ClearState(ctx, userID)
			return r.SendMessage(ctx, chatID, r.errorText(lang, err))
		}
		_ = r.facade.States.ClearState(ctx, userID)
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_updated"))

	case repository.StepEditingAgentPrompt:
		if utf8.RuneCountInString(text) > model.MaxAgentPromptLength {
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_prompt_too_long", model.MaxAgentPromptLength))
		}
		if err := r.facade.AgentUC.UpdatePrompt(ctx, userID, state.Data["agent_id"], text); err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_edit_prompt_prompt", model.MaxAgentPromptLength))
			}
			_ = r.facade.States.ClearState(ctx, userID)
			return r.SendMessage(ctx, chatID, r.errorText(lang, err))
		}
		_ = r.facade.States.ClearState(ctx, userID)
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_updated"))

	default:
		// Stale or unknown state, drop it and treat the text as chat.
		_ = r.facade.States.ClearState(ctx, userID)
		return r.handleTextMessage(ctx, message)
	}
}

// handlePhotoMessage downloads the photo and answers with the vision flow.
func (r *RealTelegramBotAdapter) handlePhotoMessage(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	lang := langOf(message.From)

	data, err := r.downloadPhoto(ctx, message.Photo)
	if err != nil {
		r.log.Error().Err(err).Int64("tg_id", userID).Msg("photo download failed")
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T(lang, "error_generic"))
	}

	r.sendTyping(message.Chat.ID)
	reply, err := r.facade.HandlePhoto(ctx, userID, data)
	if err != nil {
		if errors.Is(err, domain.ErrAccessDenied) {
			return r.sendAccessGate(ctx, userID, message.Chat.ID, lang)
		}
		r.log.Error().Err(err).Int64("tg_id", userID).Msg("photo message failed")
		return r.SendMessage(ctx, message.Chat.ID, r.errorText(lang, err))
	}
	return r.SendMessage(ctx, message.Chat.ID, reply)
}
