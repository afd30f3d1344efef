package application

import (
	"context"
	"strconv"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/usecase"
)

// BotFacade composes usecases into the high-level operations the Telegram
// adapter calls. Formatting and localization stay in the adapter; the facade
// returns data and domain errors.
type BotFacade struct {
	UserUC      usecase.UserUseCase
	AgentUC     usecase.AgentUseCase
	AccessUC    usecase.AccessUseCase
	BillingUC   usecase.BillingUseCase
	ChatUC      usecase.ChatUseCase
	BroadcastUC usecase.BroadcastUseCase
	States      repository.StateRepository
}

func NewBotFacade(
	userUC usecase.UserUseCase,
	agentUC usecase.AgentUseCase,
	accessUC usecase.AccessUseCase,
	billingUC usecase.BillingUseCase,
	chatUC usecase.ChatUseCase,
	broadcastUC usecase.BroadcastUseCase,
	states repository.StateRepository,
) *BotFacade {
	return &BotFacade{
		UserUC:      userUC,
		AgentUC:     agentUC,
		AccessUC:    accessUC,
		BillingUC:   billingUC,
		ChatUC:      chatUC,
		BroadcastUC: broadcastUC,
		States:      states,
	}
}

// StartResult is what /start produced: the user record and, when the deep
// link named an inviter, the referral outcome.
type StartResult struct {
	User      *model.User
	Created   bool
	InviterID int64
	Referral  *usecase.ReferralResult
}

// HandleStart registers or fetches the user. A numeric start payload is an
// invite link; the referral applies only on first contact, and never to
// self-invites.
func (b *BotFacade) HandleStart(ctx context.Context, userID int64, username, languageCode, payload string) (*StartResult, error) {
	user, created, err := b.UserUC.GetOrCreate(ctx, userID, username, languageCode)
	if err != nil {
		return nil, err
	}
	res := &StartResult{User: user, Created: created}

	if !created || payload == "" {
		return res, nil
	}
	inviterID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || inviterID <= 0 {
		return res, nil
	}
	ref, err := b.AccessUC.RecordReferral(ctx, inviterID, userID)
	if err != nil {
		// A bad invite link must not break onboarding.
		if err == domain.ErrSelfReferral || err == domain.ErrNotFound || err == domain.ErrAlreadyInvited {
			return res, nil
		}
		return nil, err
	}
	res.InviterID = inviterID
	res.Referral = ref
	return res, nil
}

// requireAccess loads the user and applies the configured access gate.
func (b *BotFacade) requireAccess(ctx context.Context, userID int64) (*model.User, error) {
	user, err := b.UserUC.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := b.AccessUC.Check(ctx, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return user, domain.ErrAccessDenied
	}
	return user, nil
}

// HandleChatMessage runs the gated text chat path.
func (b *BotFacade) HandleChatMessage(ctx context.Context, userID int64, text string) (string, error) {
	if _, err := b.requireAccess(ctx, userID); err != nil {
		return "", err
	}
	return b.ChatUC.SendMessage(ctx, userID, text)
}

// HandlePhoto answers a photo with the user's current model.
func (b *BotFacade) HandlePhoto(ctx context.Context, userID int64, image []byte) (string, error) {
	if _, err := b.requireAccess(ctx, userID); err != nil {
		return "", err
	}
	return b.ChatUC.ReadImage(ctx, userID, image)
}

// HandleGenerateImage runs /image end to end and returns the image URL.
func (b *BotFacade) HandleGenerateImage(ctx context.Context, userID int64, prompt string) (string, error) {
	if _, err := b.requireAccess(ctx, userID); err != nil {
		return "", err
	}
	return b.ChatUC.GenerateImage(ctx, userID, prompt)
}

// HandleTextToSpeech runs /audio end to end and returns mp3 bytes.
func (b *BotFacade) HandleTextToSpeech(ctx context.Context, userID int64, text string) ([]byte, error) {
	if _, err := b.requireAccess(ctx, userID); err != nil {
		return nil, err
	}
	return b.ChatUC.TextToSpeech(ctx, userID, text)
}
