//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/usecase"
)

func seedAgentUser(t *testing.T, repo *MockUserRepo) {
	t.Helper()
	u, err := model.NewUser(1, "alice", "en", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	repo.Seed(u)
}

func TestAgentUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("new agent becomes the active one", func(t *testing.T) {
		repo := NewMockUserRepo()
		seedAgentUser(t, repo)
		uc := usecase.NewAgentUseCase(repo, testLogger())

		agent, err := uc.Create(ctx, 1, "Tutor", "You are a patient tutor.")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if agent.AgentID == "" {
			t.Fatal("empty agent id")
		}

		stored := repo.Stored(1)
		if stored.CurrentAgentID == nil || *stored.CurrentAgentID != agent.AgentID {
			t.Fatal("new agent is not active")
		}
		if len(stored.CustomAgents) != 1 {
			t.Fatalf("agent count = %d", len(stored.CustomAgents))
		}
	})

	t.Run("name and prompt validation", func(t *testing.T) {
		repo := NewMockUserRepo()
		seedAgentUser(t, repo)
		uc := usecase.NewAgentUseCase(repo, testLogger())

		cases := []struct {
			name   string
			prompt string
			want   error
		}{
			{"", "prompt", domain.ErrInvalidArgument},
			{"name", "  ", domain.ErrInvalidArgument},
			{strings.Repeat("n", model.MaxAgentNameLength+1), "prompt", domain.ErrNameTooLong},
			{"name", strings.Repeat("p", model.MaxAgentPromptLength+1), domain.ErrPromptTooLong},
		}
		for _, tc := range cases {
			if _, err := uc.Create(ctx, 1, tc.name, tc.prompt); !errors.Is(err, tc.want) {
				t.Fatalf("Create(%q-ish) err = %v, want %v", tc.name, err, tc.want)
			}
		}
	})

	t.Run("rune limits count characters not bytes", func(t *testing.T) {
		repo := NewMockUserRepo()
		seedAgentUser(t, repo)
		uc := usecase.NewAgentUseCase(repo, testLogger())

		// 50 cyrillic runes exceed 50 bytes but stay within the limit.
		name := strings.Repeat("ж", model.MaxAgentNameLength)
		if _, err := uc.Create(ctx, 1, name, "prompt"); err != nil {
			t.Fatalf("Create with max-length unicode name: %v", err)
		}
	})

	t.Run("per-user limit", func(t *testing.T) {
		repo := NewMockUserRepo()
		seedAgentUser(t, repo)
		uc := usecase.NewAgentUseCase(repo, testLogger())

		for i := 0; i < model.MaxAgentsPerUser; i++ {
			if _, err := uc.Create(ctx, 1, fmt.Sprintf("agent-%d", i), "prompt"); err != nil {
				t.Fatalf("Create %d: %v", i, err)
			}
		}
		if _, err := uc.Create(ctx, 1, "one too many", "prompt"); !errors.Is(err, domain.ErrAgentLimitReached) {
			t.Fatalf("err = %v, want ErrAgentLimitReached", err)
		}
	})
}

func TestAgentUseCase_Edit(t *testing.T) {
	ctx := context.Background()
	repo := NewMockUserRepo()
	seedAgentUser(t, repo)
	uc := usecase.NewAgentUseCase(repo, testLogger())

	agent, err := uc.Create(ctx, 1, "Tutor", "old prompt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Run("rename persists", func(t *testing.T) {
		if err := uc.Rename(ctx, 1, agent.AgentID, "Mentor"); err != nil {
			t.Fatalf("Rename: %v", err)
		}
		got, err := uc.Get(ctx, 1, agent.AgentID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Name != "Mentor" {
			t.Fatalf("name = %q", got.Name)
		}
	})

	t.Run("prompt update persists", func(t *testing.T) {
		if err := uc.UpdatePrompt(ctx, 1, agent.AgentID, "new prompt"); err != nil {
			t.Fatalf("UpdatePrompt: %v", err)
		}
		got, _ := uc.Get(ctx, 1, agent.AgentID)
		if got.SystemPrompt != "new prompt" {
			t.Fatalf("prompt = %q", got.SystemPrompt)
		}
	})

	t.Run("rename validation", func(t *testing.T) {
		if err := uc.Rename(ctx, 1, agent.AgentID, strings.Repeat("n", model.MaxAgentNameLength+1)); !errors.Is(err, domain.ErrNameTooLong) {
			t.Fatalf("err = %v, want ErrNameTooLong", err)
		}
	})

	t.Run("unknown agent", func(t *testing.T) {
		if err := uc.Rename(ctx, 1, "missing", "x"); !errors.Is(err, domain.ErrAgentNotFound) {
			t.Fatalf("err = %v, want ErrAgentNotFound", err)
		}
	})
}

func TestAgentUseCase_SwitchAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMockUserRepo()
	seedAgentUser(t, repo)
	uc := usecase.NewAgentUseCase(repo, testLogger())

	first, err := uc.Create(ctx, 1, "First", "prompt one")
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, err := uc.Create(ctx, 1, "Second", "prompt two")
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	t.Run("switch between agents", func(t *testing.T) {
		if err := uc.Switch(ctx, 1, &first.AgentID); err != nil {
			t.Fatalf("Switch: %v", err)
		}
		if got := repo.Stored(1).CurrentAgentID; got == nil || *got != first.AgentID {
			t.Fatal("first agent not active")
		}
	})

	t.Run("switch to nil returns to the default assistant", func(t *testing.T) {
		if err := uc.Switch(ctx, 1, nil); err != nil {
			t.Fatalf("Switch(nil): %v", err)
		}
		if repo.Stored(1).CurrentAgentID != nil {
			t.Fatal("agent still active after deactivation")
		}
	})

	t.Run("switch to unknown agent", func(t *testing.T) {
		if err := uc.Switch(ctx, 1, strPtr("missing")); !errors.Is(err, domain.ErrAgentNotFound) {
			t.Fatalf("err = %v, want ErrAgentNotFound", err)
		}
	})

	t.Run("delete drops the agent its history and the active pointer", func(t *testing.T) {
		if err := uc.Switch(ctx, 1, &second.AgentID); err != nil {
			t.Fatalf("Switch: %v", err)
		}
		if err := repo.DebitAndAppendHistory(ctx, nil, 1, 0, model.HistoryEntry{Message: "m", Response: "r"}, &second.AgentID); err != nil {
			t.Fatalf("seed history: %v", err)
		}

		if err := uc.Delete(ctx, 1, second.AgentID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		stored := repo.Stored(1)
		if stored.AgentByID(second.AgentID) != nil {
			t.Fatal("agent still present")
		}
		if _, ok := stored.AgentHistories[second.AgentID]; ok {
			t.Fatal("history bucket survived the delete")
		}
		if stored.CurrentAgentID != nil {
			t.Fatal("deleted agent still active")
		}
	})

	t.Run("delete unknown agent", func(t *testing.T) {
		if err := uc.Delete(ctx, 1, "missing"); !errors.Is(err, domain.ErrAgentNotFound) {
			t.Fatalf("err = %v, want ErrAgentNotFound", err)
		}
	})
}
