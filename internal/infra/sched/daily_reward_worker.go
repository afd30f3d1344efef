package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/infra/i18n"
	"telegram-llm-bot/internal/usecase"
)

// DailyRewardWorker periodically refills free-tariff users whose last refill
// is older than the current UTC day. The repository guard keeps the grant
// idempotent, so overlapping runs cannot double-pay.
type DailyRewardWorker struct {
	interval   time.Duration
	users      repository.UserRepository
	billing    usecase.BillingUseCase
	bot        adapter.TelegramBotAdapter
	translator *i18n.Translator
	log        *zerolog.Logger
}

func NewDailyRewardWorker(
	interval time.Duration,
	users repository.UserRepository,
	billing usecase.BillingUseCase,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	logger *zerolog.Logger,
) *DailyRewardWorker {
	compLog := logger.With().Str("component", "DailyRewardWorker").Logger()
	return &DailyRewardWorker{
		interval:   interval,
		users:      users,
		billing:    billing,
		bot:        bot,
		translator: translator,
		log:        &compLog,
	}
}

func (w *DailyRewardWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting daily reward worker")
	// Run once on startup, then on every tick
	w.runGrants(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping daily reward worker")
			return ctx.Err()
		case <-ticker.C:
			w.runGrants(ctx)
		}
	}
}

func (w *DailyRewardWorker) runGrants(ctx context.Context) {
	cutoff := time.Now().UTC().Truncate(24 * time.Hour)
	due, err := w.users.ListDailyRewardDue(ctx, repository.NoTX, model.TariffFree, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("listing due users failed")
		return
	}

	granted := 0
	for _, userID := range due {
		if ctx.Err() != nil {
			return
		}
		amount, err := w.billing.GrantDaily(ctx, userID)
		if err != nil {
			w.log.Error().Err(err).Int64("user_id", userID).Msg("daily grant failed")
			continue
		}
		if amount == 0 {
			continue
		}
		granted++
		w.notify(ctx, userID, amount)
	}
	if granted > 0 {
		w.log.Info().Int("count", granted).Msg("daily rewards granted")
	}
}

func (w *DailyRewardWorker) notify(ctx context.Context, userID, amount int64) {
	lang := ""
	if user, err := w.users.FindByID(ctx, repository.NoTX, userID); err == nil {
		lang = user.LanguageCode
	}
	text := w.translator.T(lang, "daily_reward_granted", amount)
	if err := w.bot.SendMessage(ctx, userID, text); err != nil {
		w.log.Warn().Err(err).Int64("user_id", userID).Msg("daily reward notification failed")
	}
}
