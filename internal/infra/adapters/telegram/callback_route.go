package telegram

import (
	"context"
	"errors"
	"strconv"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/domain/ports/repository"
)

type cbHandler func(ctx context.Context, userID, chatID int64, lang, data string) error
type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"agents:menu": func(ctx context.Context, _, chatID int64, lang, _ string) error {
			return r.sendAgentsMenu(ctx, chatID, lang)
		},
		"agents:list":   r.agentsListCBRoute,
		"agents:create": r.agentCreateCBRoute,
		"agent:default": r.agentDefaultCBRoute,
		"sub:check":     r.subCheckCBRoute,
	}
}

// Prefix-match callbacks. delete_confirm must come before delete.
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: "model:", Fn: r.modelSwitchCBRoute},
		{Prefix: "agent:manage:", Fn: r.agentManageCBRoute},
		{Prefix: "agent:switch:", Fn: r.agentSwitchCBRoute},
		{Prefix: "agent:edit_name:", Fn: r.agentEditNameCBRoute},
		{Prefix: "agent:edit_prompt:", Fn: r.agentEditPromptCBRoute},
		{Prefix: "agent:delete_confirm:", Fn: r.agentDeleteConfirmCBRoute},
		{Prefix: "agent:delete:", Fn: r.agentDeleteCBRoute},
		{Prefix: "pay:", Fn: r.payCBRoute},
	}
}

func (r *RealTelegramBotAdapter) agentsListCBRoute(ctx context.Context, userID, chatID int64, lang, _ string) error {
	return r.sendAgentsList(ctx, userID, chatID, lang)
}

// agentCreateCBRoute starts the two-step creation dialog.
func (r *RealTelegramBotAdapter) agentCreateCBRoute(ctx context.Context, userID, chatID int64, lang, _ string) error {
	agents, err := r.facade.AgentUC.List(ctx, userID)
	if err != nil {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}
	if len(agents) >= model.MaxAgentsPerUser {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_limit_reached", model.MaxAgentsPerUser))
	}

	state := &repository.ConversationState{
		Step: repository.StepCreatingAgentName,
		Data: map[string]string{},
	}
	if err := r.facade.States.SetState(ctx, userID, state); err != nil {
		r.log.Error().Err(err).Int64("tg_id", userID).Msg("failed to set creation state")
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}
	return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_name_prompt", model.MaxAgentNameLength))
}

func (r *RealTelegramBotAdapter) agentDefaultCBRoute(ctx context.Context, userID, chatID int64, lang, _ string) error {
	if err := r.facade.AgentUC.Switch(ctx, userID, nil); err != nil {
		return r.SendMessage(ctx, chatID, r.errorText(lang, err))
	}
	return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_deactivated"))
}

// subCheckCBRoute re-runs the channel membership check on demand.
func (r *RealTelegramBotAdapter) subCheckCBRoute(ctx context.Context, userID, chatID int64, lang, _ string) error {
	user, err := r.facade.UserUC.Get(ctx, userID)
	if err != nil {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}
	ok, err := r.facade.AccessUC.Check(ctx, user)
	if err != nil {
		r.log.Warn().Err(err).Int64("tg_id", userID).Msg("membership check failed")
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}
	if !ok {
		return r.sendAccessGate(ctx, userID, chatID, lang)
	}
	return r.SendMessage(ctx, chatID, r.translator.T(lang, "sub_ok"))
}

func (r *RealTelegramBotAdapter) modelSwitchCBRoute(ctx context.Context, userID, chatID int64, lang, modelName string) error {
	if err := r.facade.UserUC.SetModel(ctx, userID, modelName); err != nil {
		return r.SendMessage(ctx, chatID, r.errorText(lang, err))
	}
	return r.SendMessage(ctx, chatID, r.translator.T(lang, "model_switched", modelName))
}

func (r *RealTelegramBotAdapter) agentManageCBRoute(ctx context.Context, userID, chatID int64, lang, agentID string) error {
	agent, err := r.facade.AgentUC.Get(ctx, userID, agentID)
	if err != nil {
		return r.SendMessage(ctx, chatID, r.errorText(lang, err))
	}
	rows := [][]adapter.InlineButton{
		{{Text: r.translator.T(lang, "button_agent_switch"), Data: "agent:switch:" + agentID}},
		{
			{Text: r.translator.T(lang, "button_agent_edit_name"), Data: "agent:edit_name:" + agentID},
			{Text: r.translator.T(lang, "button_agent_edit_prompt"), Data: "agent:edit_prompt:" + agentID},
		},
		{{Text: r.translator.T(lang, "button_agent_delete"), Data: "agent:delete:" + agentID}},
		{{Text: r.translator.T(lang, "button_agents_back"), Data: "agents:list"}},
	}
	text := r.translator.T(lang, "agent_manage_header", agent.Name, agent.SystemPrompt)
	return r.SendButtons(ctx, chatID, text, rows)
}

func (r *RealTelegramBotAdapter) agentSwitchCBRoute(ctx context.Context, userID, chatID int64, lang, agentID string) error {
	agent, err := r.facade.AgentUC.Get(ctx, userID, agentID)
	if err != nil {
		return r.SendMessage(ctx, chatID, r.errorText(lang, err))
	}
	if err := r.facade.AgentUC.Switch(ctx, userID, &agentID); err != nil {
		return r.SendMessage(ctx, chatID, r.errorText(lang, err))
	}
	return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_switched", agent.Name))
}

func (r *RealTelegramBotAdapter) agentEditNameCBRoute(ctx context.Context, userID, chatID int64, lang, agentID string) error {
	state := &repository.ConversationState{
		Step: repository.StepEditingAgentName,
		Data: map[string]string{"agent_id": agentID},
	}
	if err := r.facade.States.SetState(ctx, userID, state); err != nil {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}
	return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_edit_name_prompt", model.MaxAgentNameLength))
}

func (r *RealTelegramBotAdapter) agentEditPromptCBRoute(ctx context.Context, userID, chatID int64, lang, agentID string) error {
	state := &repository.ConversationState{
		Step: repository.StepEditingAgentPrompt,
		Data: map[string]string{"agent_id": agentID},
	}
	if err := r.facade.States.SetState(ctx, userID, state); err != nil {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}
	return r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_edit_prompt_prompt", model.MaxAgentPromptLength))
}

func (r *RealTelegramBotAdapter) agentDeleteCBRoute(ctx context.Context, userID, chatID int64, lang, agentID string) error {
	agent, err := r.facade.AgentUC.Get(ctx, userID, agentID)
	if err != nil {
		return r.SendMessage(ctx, chatID, r.errorText(lang, err))
	}
	rows := [][]adapter.InlineButton{
		{{Text: r.translator.T(lang, "button_confirm_delete"), Data: "agent:delete_confirm:" + agentID}},
		{{Text: r.translator.T(lang, "button_cancel"), Data: "agents:list"}},
	}
	return r.SendButtons(ctx, chatID, r.translator.T(lang, "agent_delete_confirm", agent.Name), rows)
}

func (r *RealTelegramBotAdapter) agentDeleteConfirmCBRoute(ctx context.Context, userID, chatID int64, lang, agentID string) error {
	if err := r.facade.AgentUC.Delete(ctx, userID, agentID); err != nil {
		return r.SendMessage(ctx, chatID, r.errorText(lang, err))
	}
	if err := r.SendMessage(ctx, chatID, r.translator.T(lang, "agent_deleted")); err != nil {
		return err
	}
	return r.sendAgentsList(ctx, userID, chatID, lang)
}

// payCBRoute opens a checkout for the selected token pack.
func (r *RealTelegramBotAdapter) payCBRoute(ctx context.Context, userID, chatID int64, lang, idx string) error {
	packs := r.facade.BillingUC.Packs()
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= len(packs) {
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}

	url, err := r.facade.BillingUC.CreateCheckout(ctx, userID, packs[i])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
		}
		r.log.Error().Err(err).Int64("tg_id", userID).Msg("checkout failed")
		return r.SendMessage(ctx, chatID, r.translator.T(lang, "error_generic"))
	}

	rows := [][]adapter.InlineButton{
		{{Text: r.translator.T(lang, "button_pay_now"), URL: url}},
	}
	return r.SendButtons(ctx, chatID, r.translator.T(lang, "payment_link"), rows)
}
