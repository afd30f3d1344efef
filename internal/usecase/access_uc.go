package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/config"
	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/infra/logging"
	"telegram-llm-bot/internal/infra/metrics"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

// ReferralResult reports what applying one referral changed. A duplicate
// invite is reported as ErrAlreadyInvited instead.
type ReferralResult struct {
	AccessUnlocked bool  // inviter crossed the threshold with this invite
	Bonus          int64 // tokens credited to the inviter
}

// AccessUseCase decides whether a user may talk to the bot and records
// referrals. Which gate applies comes from config:
//
//	open     - everyone is allowed
//	referral - allowed after inviting N friends (then sticky)
//	channel  - allowed while subscribed to the configured channel
//	sticky   - allowed only when the flag was granted (admin or referral)
type AccessUseCase interface {
	Check(ctx context.Context, user *model.User) (bool, error)
	RecordReferral(ctx context.Context, inviterID, inviteeID int64) (*ReferralResult, error)
	InviteLink(userID int64) string
	Grant(ctx context.Context, userID int64) error
	Policy() string
	ReferralThreshold() int
}

type accessUC struct {
	users       repository.UserRepository
	bot         adapter.TelegramBotAdapter
	cfg         config.AccessConfig
	channel     string
	botUsername string
	bonus       int64
	log         *zerolog.Logger
}

func NewAccessUseCase(
	users repository.UserRepository,
	bot adapter.TelegramBotAdapter,
	cfg config.AccessConfig,
	channel, botUsername string,
	referralBonus int64,
	logger *zerolog.Logger,
) *accessUC {
	return &accessUC{
		users:       users,
		bot:         bot,
		cfg:         cfg,
		channel:     channel,
		botUsername: botUsername,
		bonus:       referralBonus,
		log:         logger,
	}
}

func (a *accessUC) Policy() string         { return a.cfg.Policy }
func (a *accessUC) ReferralThreshold() int { return a.cfg.ReferralThreshold }

func (a *accessUC) Check(ctx context.Context, user *model.User) (bool, error) {
	defer logging.TraceDuration(a.log, "AccessUC.Check")()

	switch a.cfg.Policy {
	case "open":
		return true, nil
	case "sticky":
		return user.AccessGranted, nil
	case "channel":
		// Membership is rechecked on every gated action; leaving the channel
		// closes access again.
		ok, err := a.bot.IsChannelMember(ctx, a.channel, user.ID)
		if err != nil {
			return false, err
		}
		return ok, nil
	default: // referral
		if user.AccessGranted {
			return true, nil
		}
		if len(user.InvitedUsers) >= a.cfg.ReferralThreshold {
			// The flag lags when the threshold was crossed by older data;
			// repair it so the gate stays sticky from here on.
			if err := a.users.UpdateFields(ctx, repository.NoTX, user.ID, map[string]any{"access_granted": true}); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, nil
	}
}

func (a *accessUC) RecordReferral(ctx context.Context, inviterID, inviteeID int64) (*ReferralResult, error) {
	defer logging.TraceDuration(a.log, "AccessUC.RecordReferral")()

	if inviterID == inviteeID {
		return nil, domain.ErrSelfReferral
	}

	inviter, err := a.users.FindByID(ctx, repository.NoTX, inviterID)
	if err != nil {
		return nil, err
	}
	unlocks := !inviter.AccessGranted &&
		(a.cfg.Policy == "referral" || a.cfg.Policy == "sticky") &&
		len(inviter.InvitedUsers)+1 >= a.cfg.ReferralThreshold

	applied, err := a.users.AppendInvite(ctx, repository.NoTX, inviterID, inviteeID, a.bonus, unlocks)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrAlreadyInvited
	}

	metrics.IncReferralBonus()
	metrics.AddTokensCredited("referral", a.bonus)
	a.log.Info().Int64("inviter", inviterID).Int64("invitee", inviteeID).Bool("unlocked", unlocks).Msg("referral recorded")
	return &ReferralResult{AccessUnlocked: unlocks, Bonus: a.bonus}, nil
}

func (a *accessUC) InviteLink(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", a.botUsername, userID)
}

func (a *accessUC) Grant(ctx context.Context, userID int64) error {
	defer logging.TraceDuration(a.log, "AccessUC.Grant")()
	return a.users.UpdateFields(ctx, repository.NoTX, userID, map[string]any{"access_granted": true})
}
