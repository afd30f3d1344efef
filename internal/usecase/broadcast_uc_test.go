//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/infra/worker"
	"telegram-llm-bot/internal/usecase"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBroadcastUseCase_BroadcastMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("queues a delivery for every user", func(t *testing.T) {
		repo := NewMockUserRepo()
		for id := int64(1); id <= 3; id++ {
			u, _ := model.NewUser(id, "u", "en", "gpt-4o-mini")
			repo.Seed(u)
		}
		bot := &MockTelegramBot{}
		pool := worker.NewPool(2)
		pool.Start(ctx)
		defer pool.Stop()

		uc := usecase.NewBroadcastUseCase(repo, bot, pool, testLogger())

		queued, err := uc.BroadcastMessage(ctx, "maintenance tonight")
		if err != nil {
			t.Fatalf("BroadcastMessage: %v", err)
		}
		if queued != 3 {
			t.Fatalf("queued = %d, want 3", queued)
		}

		waitFor(t, 2*time.Second, func() bool { return bot.SentCount() == 3 })
		for _, sent := range bot.Sent {
			if sent.Text != "maintenance tonight" {
				t.Fatalf("delivered %q", sent.Text)
			}
		}
	})

	t.Run("a failed delivery does not abort the run", func(t *testing.T) {
		repo := NewMockUserRepo()
		for id := int64(1); id <= 3; id++ {
			u, _ := model.NewUser(id, "u", "en", "gpt-4o-mini")
			repo.Seed(u)
		}
		bot := &MockTelegramBot{}
		bot.SendMessageFunc = func(ctx context.Context, telegramID int64, text string) error {
			if telegramID == 2 {
				return errors.New("blocked by user")
			}
			bot.mu.Lock()
			defer bot.mu.Unlock()
			bot.Sent = append(bot.Sent, SentMessage{ChatID: telegramID, Text: text})
			return nil
		}
		pool := worker.NewPool(1)
		pool.Start(ctx)
		defer pool.Stop()

		uc := usecase.NewBroadcastUseCase(repo, bot, pool, testLogger())

		if _, err := uc.BroadcastMessage(ctx, "hi"); err != nil {
			t.Fatalf("BroadcastMessage: %v", err)
		}
		waitFor(t, 2*time.Second, func() bool { return bot.SentCount() == 2 })
	})

	t.Run("gated-user notification targets only users without access", func(t *testing.T) {
		repo := NewMockUserRepo()
		for id := int64(1); id <= 3; id++ {
			u, _ := model.NewUser(id, "u", "en", "gpt-4o-mini")
			u.AccessGranted = id == 2
			repo.Seed(u)
		}
		bot := &MockTelegramBot{}
		pool := worker.NewPool(2)
		pool.Start(ctx)
		defer pool.Stop()

		uc := usecase.NewBroadcastUseCase(repo, bot, pool, testLogger())

		queued, err := uc.NotifyUsersWithoutAccess(ctx, func(u *model.User) (string, [][]adapter.InlineButton) {
			return "join the channel", [][]adapter.InlineButton{{{Text: "check", Data: "sub:check"}}}
		})
		if err != nil {
			t.Fatalf("NotifyUsersWithoutAccess: %v", err)
		}
		if queued != 2 {
			t.Fatalf("queued = %d, want 2", queued)
		}

		waitFor(t, 2*time.Second, func() bool { return bot.SentCount() == 2 })
		for _, sent := range bot.Sent {
			if sent.ChatID == 2 {
				t.Fatal("granted user was notified")
			}
		}
	})

	t.Run("listing failure surfaces to the caller", func(t *testing.T) {
		repo := NewMockUserRepo()
		boom := errors.New("db down")
		repo.ListFunc = func(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
			return nil, boom
		}
		pool := worker.NewPool(1)
		pool.Start(ctx)
		defer pool.Stop()

		uc := usecase.NewBroadcastUseCase(repo, &MockTelegramBot{}, pool, testLogger())
		if _, err := uc.BroadcastMessage(ctx, "hi"); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want listing error", err)
		}
	})
}
