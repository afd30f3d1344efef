package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/config"
	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/infra/logging"
	"telegram-llm-bot/internal/infra/metrics"
)

// Operation kinds priced by the ledger.
const (
	OpText  = "text"
	OpImage = "image"
	OpAudio = "audio"
)

// Compile-time check
var _ BillingUseCase = (*billingUC)(nil)

// BillingUseCase prices operations, grants the daily refill and runs the
// checkout flow. Debits themselves happen inside the chat path, coupled with
// the history append.
type BillingUseCase interface {
	Cost(operation string) int64
	// CostFor prices the operation for a specific user: text chat on the
	// configured free model costs nothing for users on the matching tariff.
	CostFor(user *model.User, operation string) int64
	// EnsureAffordable returns ErrInsufficientBalance when the user cannot pay
	// for the operation.
	EnsureAffordable(user *model.User, operation string) error

	// GrantDaily resets the user's balance to the configured daily amount at
	// most once per UTC day. Returns the granted amount, or 0 when the guard
	// rejected.
	GrantDaily(ctx context.Context, userID int64) (int64, error)

	Packs() []config.TokenPack
	Currency() string
	// CreateCheckout opens a hosted checkout for the pack and records the
	// pending payment on the user.
	CreateCheckout(ctx context.Context, userID int64, pack config.TokenPack) (url string, err error)
	// Settle credits a paid checkout exactly once. Duplicate callbacks report
	// applied=false.
	Settle(ctx context.Context, paymentID string) (userID int64, tokens int64, applied bool, err error)
}

type billingUC struct {
	users   repository.UserRepository
	gateway adapter.PaymentGateway
	cfg     config.BillingConfig
	curr    string
	log     *zerolog.Logger
}

func NewBillingUseCase(users repository.UserRepository, gateway adapter.PaymentGateway, cfg config.BillingConfig, currency string, logger *zerolog.Logger) *billingUC {
	return &billingUC{users: users, gateway: gateway, cfg: cfg, curr: currency, log: logger}
}

func (b *billingUC) Cost(operation string) int64 {
	switch operation {
	case OpImage:
		return b.cfg.ImageCost
	case OpAudio:
		return b.cfg.AudioCost
	default:
		return b.cfg.TextCost
	}
}

func (b *billingUC) CostFor(user *model.User, operation string) int64 {
	if operation == OpText && b.cfg.FreeModel != "" && user.CurrentModel == b.cfg.FreeModel {
		if b.cfg.FreeTariff == "" || user.Tariff == b.cfg.FreeTariff {
			return 0
		}
	}
	return b.Cost(operation)
}

func (b *billingUC) EnsureAffordable(user *model.User, operation string) error {
	if !user.CanAfford(b.CostFor(user, operation)) {
		metrics.PrecheckBlocked("", user.CurrentModel)
		return domain.ErrInsufficientBalance
	}
	return nil
}

func (b *billingUC) GrantDaily(ctx context.Context, userID int64) (int64, error) {
	defer logging.TraceDuration(b.log, "BillingUC.GrantDaily")()

	cutoff := time.Now().UTC().Truncate(24 * time.Hour)
	applied, err := b.users.GrantDailyReward(ctx, repository.NoTX, userID, b.cfg.DailyTokens, cutoff)
	if err != nil {
		return 0, err
	}
	if !applied {
		return 0, nil
	}
	metrics.IncDailyRewardGranted()
	metrics.AddTokensCredited("daily", b.cfg.DailyTokens)
	return b.cfg.DailyTokens, nil
}

func (b *billingUC) Packs() []config.TokenPack { return b.cfg.Packs }

func (b *billingUC) Currency() string { return b.curr }

func (b *billingUC) CreateCheckout(ctx context.Context, userID int64, pack config.TokenPack) (string, error) {
	defer logging.TraceDuration(b.log, "BillingUC.CreateCheckout")()

	if pack.Tokens <= 0 || pack.Amount <= 0 {
		return "", domain.ErrInvalidArgument
	}
	desc := fmt.Sprintf("%d tokens", pack.Tokens)
	checkout, err := b.gateway.CreateCheckout(ctx, pack.Amount, b.curr, desc)
	if err != nil {
		metrics.IncPayment("failed")
		return "", err
	}
	pending := model.PendingPayment{
		PaymentID: checkout.PaymentID,
		Amount:    pack.Amount,
		Tokens:    pack.Tokens,
		Status:    "pending",
	}
	if err := b.users.AddPendingPayment(ctx, repository.NoTX, userID, pending); err != nil {
		return "", err
	}
	metrics.IncPayment("initiated")
	b.log.Info().Int64("user_id", userID).Str("payment_id", checkout.PaymentID).Int64("tokens", pack.Tokens).Msg("checkout created")
	return checkout.URL, nil
}

func (b *billingUC) Settle(ctx context.Context, paymentID string) (int64, int64, bool, error) {
	defer logging.TraceDuration(b.log, "BillingUC.Settle")()

	userID, tokens, applied, err := b.users.SettlePayment(ctx, repository.NoTX, paymentID)
	if err != nil {
		return 0, 0, false, err
	}
	if !applied {
		metrics.IncPayment("duplicate")
		return 0, 0, false, nil
	}
	metrics.IncPayment("settled")
	metrics.AddTokensCredited("payment", tokens)
	b.log.Info().Int64("user_id", userID).Str("payment_id", paymentID).Int64("tokens", tokens).Msg("payment settled")
	return userID, tokens, true, nil
}
