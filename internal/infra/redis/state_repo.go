package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-llm-bot/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo manages user conversational state in Redis. The TTL bounds how
// long a half-finished dialog (agent creation, renames) survives; after it a
// plain message goes back to the chat path.
type StateRepo struct {
	client *Client
	ttl    time.Duration
}

func NewStateRepo(client *Client, ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateRepo{client: client, ttl: ttl}
}

func (s *StateRepo) stateKey(userID int64) string {
	return fmt.Sprintf("conv_state:%d", userID)
}

func (s *StateRepo) SetState(ctx context.Context, userID int64, state *repository.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(userID), data, s.ttl)
}

// GetState returns nil without error when the user has no active dialog.
func (s *StateRepo) GetState(ctx context.Context, userID int64) (*repository.ConversationState, error) {
	data, err := s.client.Get(ctx, s.stateKey(userID))
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var state repository.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, s.stateKey(userID))
}
