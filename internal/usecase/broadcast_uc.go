package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/infra/metrics"
	"telegram-llm-bot/internal/infra/worker"
)

type BroadcastUseCase interface {
	// BroadcastMessage queues message for every known user and returns how
	// many deliveries were queued.
	BroadcastMessage(ctx context.Context, message string) (int, error)

	// NotifyUsersWithoutAccess queues a rendered message for every user still
	// behind the access gate. render receives each target so the surface can
	// localize text and buttons per user.
	NotifyUsersWithoutAccess(ctx context.Context, render func(u *model.User) (string, [][]adapter.InlineButton)) (int, error)
}

type broadcastUC struct {
	users      repository.UserRepository
	bot        adapter.TelegramBotAdapter
	workerPool *worker.Pool
	log        *zerolog.Logger
}

func NewBroadcastUseCase(
	users repository.UserRepository,
	bot adapter.TelegramBotAdapter,
	pool *worker.Pool,
	logger *zerolog.Logger,
) BroadcastUseCase {
	return &broadcastUC{
		users:      users,
		bot:        bot,
		workerPool: pool,
		log:        logger,
	}
}

func (uc *broadcastUC) BroadcastMessage(ctx context.Context, message string) (int, error) {
	allUsers, err := uc.users.List(ctx, repository.NoTX)
	if err != nil {
		uc.log.Error().Err(err).Msg("Failed to fetch all users for broadcast")
		return 0, err
	}

	// Throttle to respect Telegram's API limits (approx. 30 messages/sec)
	throttle := time.NewTicker(time.Second / 25)

	go func() {
		defer throttle.Stop()
		uc.log.Info().Int("user_count", len(allUsers)).Msg("Starting broadcast job")

		for _, user := range allUsers {
			<-throttle.C

			task := uc.createSendTask(user.ID, message)
			if err := uc.workerPool.Submit(task); err != nil {
				uc.log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to submit broadcast task to worker pool")
				metrics.IncBroadcastMessage("failed")
			}
		}
		uc.log.Info().Msg("Broadcast job finished queuing all tasks")
	}()

	return len(allUsers), nil
}

func (uc *broadcastUC) NotifyUsersWithoutAccess(ctx context.Context, render func(u *model.User) (string, [][]adapter.InlineButton)) (int, error) {
	targets, err := uc.users.ListWithoutAccess(ctx, repository.NoTX)
	if err != nil {
		uc.log.Error().Err(err).Msg("Failed to fetch gated users for notification")
		return 0, err
	}

	throttle := time.NewTicker(time.Second / 25)

	go func() {
		defer throttle.Stop()
		uc.log.Info().Int("user_count", len(targets)).Msg("Starting gated-user notification job")

		for _, user := range targets {
			<-throttle.C

			text, rows := render(user)
			task := uc.createSendButtonsTask(user.ID, text, rows)
			if err := uc.workerPool.Submit(task); err != nil {
				uc.log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to submit notification task to worker pool")
				metrics.IncBroadcastMessage("failed")
			}
		}
		uc.log.Info().Msg("Gated-user notification job finished queuing all tasks")
	}()

	return len(targets), nil
}

// createSendTask creates a closure for the worker pool to execute.
func (uc *broadcastUC) createSendTask(userID int64, message string) worker.Task {
	return func(ctx context.Context) error {
		if err := uc.bot.SendMessage(ctx, userID, message); err != nil {
			// Deliveries fail routinely (user blocked the bot); log and count,
			// never abort the run.
			uc.log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to send broadcast message to user")
			metrics.IncBroadcastMessage("failed")
			return nil
		}
		metrics.IncBroadcastMessage("delivered")
		return nil
	}
}

func (uc *broadcastUC) createSendButtonsTask(userID int64, message string, rows [][]adapter.InlineButton) worker.Task {
	return func(ctx context.Context) error {
		var err error
		if len(rows) == 0 {
			err = uc.bot.SendMessage(ctx, userID, message)
		} else {
			err = uc.bot.SendButtons(ctx, userID, message, rows)
		}
		if err != nil {
			uc.log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to send notification to user")
			metrics.IncBroadcastMessage("failed")
			return nil
		}
		metrics.IncBroadcastMessage("delivered")
		return nil
	}
}
