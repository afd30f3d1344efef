//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/usecase"
)

func TestUserUseCase_GetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("first contact registers with welcome tokens", func(t *testing.T) {
		repo := NewMockUserRepo()
		uc := usecase.NewUserUseCase(repo, &MockTxManager{}, "gpt-4o-mini", 25, testLogger())

		u, created, err := uc.GetOrCreate(ctx, 7, "bob", "ru")
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if !created {
			t.Fatal("created = false on first contact")
		}
		if u.Balance != 25 {
			t.Fatalf("balance = %d, want welcome 25", u.Balance)
		}
		if u.CurrentModel != "gpt-4o-mini" || u.Tariff != model.TariffFree {
			t.Fatalf("defaults not applied: model=%q tariff=%q", u.CurrentModel, u.Tariff)
		}
		if u.LanguageCode != "ru" {
			t.Fatalf("language = %q", u.LanguageCode)
		}
		// The mock rejects nil collections the way the NOT NULL columns would,
		// so reaching here means the insert carried an empty array, not NULL.
		if stored := repo.Stored(7); stored.InvitedUsers == nil {
			t.Fatal("stored InvitedUsers is nil")
		}
	})

	t.Run("second contact returns the stored record untouched", func(t *testing.T) {
		repo := NewMockUserRepo()
		uc := usecase.NewUserUseCase(repo, &MockTxManager{}, "gpt-4o-mini", 25, testLogger())

		first, _, err := uc.GetOrCreate(ctx, 7, "bob", "ru")
		if err != nil {
			t.Fatalf("first GetOrCreate: %v", err)
		}
		// Drain the balance so a second registration would be visible.
		if err := repo.DebitAndAppendHistory(ctx, nil, 7, first.Balance, model.HistoryEntry{Message: "x", Response: "y"}, nil); err != nil {
			t.Fatalf("debit: %v", err)
		}

		again, created, err := uc.GetOrCreate(ctx, 7, "bob-renamed", "en")
		if err != nil {
			t.Fatalf("second GetOrCreate: %v", err)
		}
		if created {
			t.Fatal("created = true for an existing user")
		}
		if again.Balance != 0 {
			t.Fatalf("balance = %d, welcome tokens granted twice", again.Balance)
		}
		if again.Username != "bob" {
			t.Fatalf("username overwritten to %q", again.Username)
		}
	})

	t.Run("invalid telegram id", func(t *testing.T) {
		repo := NewMockUserRepo()
		uc := usecase.NewUserUseCase(repo, &MockTxManager{}, "gpt-4o-mini", 25, testLogger())

		if _, _, err := uc.GetOrCreate(ctx, 0, "bob", "en"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestUserUseCase_SetModel(t *testing.T) {
	ctx := context.Background()
	repo := NewMockUserRepo()
	uc := usecase.NewUserUseCase(repo, &MockTxManager{}, "gpt-4o-mini", 25, testLogger())

	if _, _, err := uc.GetOrCreate(ctx, 7, "bob", "en"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	t.Run("switch persists", func(t *testing.T) {
		if err := uc.SetModel(ctx, 7, "claude-3-5-sonnet-latest"); err != nil {
			t.Fatalf("SetModel: %v", err)
		}
		if got := repo.Stored(7).CurrentModel; got != "claude-3-5-sonnet-latest" {
			t.Fatalf("current model = %q", got)
		}
	})

	t.Run("blank model is rejected", func(t *testing.T) {
		if err := uc.SetModel(ctx, 7, "  "); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if err := uc.SetModel(ctx, 99, "gpt-4o"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestUserUseCase_Counting(t *testing.T) {
	ctx := context.Background()
	repo := NewMockUserRepo()
	uc := usecase.NewUserUseCase(repo, &MockTxManager{}, "gpt-4o-mini", 0, testLogger())

	for id := int64(1); id <= 3; id++ {
		if _, _, err := uc.GetOrCreate(ctx, id, "u", "en"); err != nil {
			t.Fatalf("seed %d: %v", id, err)
		}
	}

	n, err := uc.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	all, err := uc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("list length = %d, want 3", len(all))
	}
}
