package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"telegram-llm-bot/internal/domain"
)

const (
	MaxAgentsPerUser     = 10
	MaxAgentNameLength   = 50
	MaxAgentPromptLength = 2000
)

// Agent is a user-defined persona: a name plus a system prompt, with its own
// isolated history bucket keyed by AgentID in the owning user record.
type Agent struct {
	AgentID      string    `json:"agent_id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
}

func NewAgent(name, systemPrompt string) (*Agent, error) {
	name = strings.TrimSpace(name)
	systemPrompt = strings.TrimSpace(systemPrompt)
	if name == "" || systemPrompt == "" {
		return nil, domain.ErrInvalidArgument
	}
	if len([]rune(name)) > MaxAgentNameLength {
		return nil, domain.ErrNameTooLong
	}
	if len([]rune(systemPrompt)) > MaxAgentPromptLength {
		return nil, domain.ErrPromptTooLong
	}
	return &Agent{
		AgentID:      uuid.NewString(),
		Name:         name,
		SystemPrompt: systemPrompt,
		CreatedAt:    time.Now(),
		IsActive:     true,
	}, nil
}

// SetName validates and applies a new display name.
func (a *Agent) SetName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrInvalidArgument
	}
	if len([]rune(name)) > MaxAgentNameLength {
		return domain.ErrNameTooLong
	}
	a.Name = name
	return nil
}

// SetSystemPrompt validates and applies a new system prompt.
func (a *Agent) SetSystemPrompt(systemPrompt string) error {
	systemPrompt = strings.TrimSpace(systemPrompt)
	if systemPrompt == "" {
		return domain.ErrInvalidArgument
	}
	if len([]rune(systemPrompt)) > MaxAgentPromptLength {
		return domain.ErrPromptTooLong
	}
	a.SystemPrompt = systemPrompt
	return nil
}
