package repository

import (
	"context"
)

// Steps of the agent creation/editing dialogue.
const (
	StepCreatingAgentName   = "creating_agent_name"
	StepCreatingAgentPrompt = "creating_agent_prompt"
	StepEditingAgentName    = "editing_agent_name"
	StepEditingAgentPrompt  = "editing_agent_prompt"
)

// ConversationState holds the user's progress in a multi-step dialogue plus
// any data collected along the way (pending agent name, target agent id).
type ConversationState struct {
	Step string            `json:"step"`
	Data map[string]string `json:"data"`
}

// StateRepository is the port for managing a user's conversational state.
// Implementations should expire stale state rather than keep it forever.
type StateRepository interface {
	SetState(ctx context.Context, userID int64, state *ConversationState) error
	GetState(ctx context.Context, userID int64) (*ConversationState, error)
	ClearState(ctx context.Context, userID int64) error
}
