package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/infra/logging"
	"telegram-llm-bot/internal/infra/metrics"
)

// Compile-time check
var _ AgentUseCase = (*agentUC)(nil)

// AgentUseCase manages a user's custom agents: creation, edits, activation
// and removal. Creating or switching to an agent makes it the active one.
type AgentUseCase interface {
	List(ctx context.Context, userID int64) ([]model.Agent, error)
	Get(ctx context.Context, userID int64, agentID string) (*model.Agent, error)
	// Create validates the name and prompt, enforces the per-user limit and
	// activates the new agent.
	Create(ctx context.Context, userID int64, name, systemPrompt string) (*model.Agent, error)
	Rename(ctx context.Context, userID int64, agentID, name string) error
	UpdatePrompt(ctx context.Context, userID int64, agentID, systemPrompt string) error
	// Switch activates the agent, or returns to the default assistant when
	// agentID is nil.
	Switch(ctx context.Context, userID int64, agentID *string) error
	// Delete removes the agent together with its conversation history; when
	// it was active the user falls back to the default assistant.
	Delete(ctx context.Context, userID int64, agentID string) error
}

type agentUC struct {
	users repository.UserRepository
	log   *zerolog.Logger
}

func NewAgentUseCase(users repository.UserRepository, logger *zerolog.Logger) *agentUC {
	return &agentUC{users: users, log: logger}
}

func (a *agentUC) List(ctx context.Context, userID int64) ([]model.Agent, error) {
	defer logging.TraceDuration(a.log, "AgentUC.List")()
	u, err := a.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	return u.CustomAgents, nil
}

func (a *agentUC) Get(ctx context.Context, userID int64, agentID string) (*model.Agent, error) {
	defer logging.TraceDuration(a.log, "AgentUC.Get")()
	u, err := a.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	ag := u.AgentByID(agentID)
	if ag == nil {
		return nil, domain.ErrAgentNotFound
	}
	return ag, nil
}

func (a *agentUC) Create(ctx context.Context, userID int64, name, systemPrompt string) (*model.Agent, error) {
	defer logging.TraceDuration(a.log, "AgentUC.Create")()

	agent, err := model.NewAgent(name, systemPrompt)
	if err != nil {
		return nil, err
	}
	if err := a.users.AddAgent(ctx, repository.NoTX, userID, agent); err != nil {
		return nil, err
	}
	if err := a.users.SetCurrentAgent(ctx, repository.NoTX, userID, &agent.AgentID); err != nil {
		return nil, err
	}
	metrics.IncAgentCreated()
	a.log.Info().Int64("user_id", userID).Str("agent_id", agent.AgentID).Msg("agent created")
	return agent, nil
}

func (a *agentUC) Rename(ctx context.Context, userID int64, agentID, name string) error {
	defer logging.TraceDuration(a.log, "AgentUC.Rename")()

	agent, err := a.Get(ctx, userID, agentID)
	if err != nil {
		return err
	}
	if err := agent.SetName(name); err != nil {
		return err
	}
	return a.users.UpdateAgent(ctx, repository.NoTX, userID, agent)
}

func (a *agentUC) UpdatePrompt(ctx context.Context, userID int64, agentID, systemPrompt string) error {
	defer logging.TraceDuration(a.log, "AgentUC.UpdatePrompt")()

	agent, err := a.Get(ctx, userID, agentID)
	if err != nil {
		return err
	}
	if err := agent.SetSystemPrompt(systemPrompt); err != nil {
		return err
	}
	return a.users.UpdateAgent(ctx, repository.NoTX, userID, agent)
}

func (a *agentUC) Switch(ctx context.Context, userID int64, agentID *string) error {
	defer logging.TraceDuration(a.log, "AgentUC.Switch")()
	return a.users.SetCurrentAgent(ctx, repository.NoTX, userID, agentID)
}

func (a *agentUC) Delete(ctx context.Context, userID int64, agentID string) error {
	defer logging.TraceDuration(a.log, "AgentUC.Delete")()
	if err := a.users.DeleteAgent(ctx, repository.NoTX, userID, agentID); err != nil {
		return err
	}
	metrics.IncAgentDeleted()
	a.log.Info().Int64("user_id", userID).Str("agent_id", agentID).Msg("agent deleted")
	return nil
}
