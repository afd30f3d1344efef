// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/domain/ports/repository"
	"telegram-llm-bot/internal/infra/logging"
	"telegram-llm-bot/internal/infra/metrics"
	"telegram-llm-bot/internal/infra/redis"
)

// ContextWindow is how many recent turns accompany a new message.
const ContextWindow = 5

const chatLockTTL = 2 * time.Minute

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// ChatUseCase runs the conversation path: build context, call the provider,
// then debit and append the turn in one storage operation. A per-user lock
// serializes the whole path so concurrent messages cannot interleave.
type ChatUseCase interface {
	SendMessage(ctx context.Context, userID int64, text string) (string, error)
	// ReadImage answers a photo message with the user's current model. The
	// turn is stored with an empty message text so it never re-enters the
	// text context window.
	ReadImage(ctx context.Context, userID int64, image []byte) (string, error)
	// GenerateImage returns a URL; grok users get xAI's image model, everyone
	// else the configured default.
	GenerateImage(ctx context.Context, userID int64, prompt string) (string, error)
	TextToSpeech(ctx context.Context, userID int64, text string) ([]byte, error)
	// Reset clears only the active history bucket (default or current agent).
	Reset(ctx context.Context, userID int64) error
	ListModels(ctx context.Context) ([]string, error)
}

type chatUC struct {
	users        repository.UserRepository
	ai           adapter.AIServiceAdapter
	billing      BillingUseCase
	locker       redis.Locker
	providerFor  func(model string) string
	imageModel   string
	ttsModel     string
	systemPrompt string
	promptSuffix string
	log          *zerolog.Logger
}

func NewChatUseCase(
	users repository.UserRepository,
	ai adapter.AIServiceAdapter,
	billing BillingUseCase,
	locker redis.Locker,
	providerFor func(model string) string,
	imageModel, ttsModel string,
	systemPrompt, promptSuffix string,
	logger *zerolog.Logger,
) *chatUC {
	if providerFor == nil {
		providerFor = func(string) string { return "" }
	}
	return &chatUC{
		users:        users,
		ai:           ai,
		billing:      billing,
		locker:       locker,
		providerFor:  providerFor,
		imageModel:   imageModel,
		ttsModel:     ttsModel,
		systemPrompt: systemPrompt,
		promptSuffix: promptSuffix,
		log:          logger,
	}
}

func (c *chatUC) SendMessage(ctx context.Context, userID int64, text string) (string, error) {
	defer logging.TraceDuration(c.log, "ChatUC.SendMessage")()

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrInvalidArgument
	}

	unlock, err := c.lock(ctx, userID)
	if err != nil {
		return "", err
	}
	defer unlock()

	user, err := c.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return "", err
	}
	if err := c.billing.EnsureAffordable(user, OpText); err != nil {
		return "", err
	}

	messages := c.buildContext(user, text)

	start := time.Now()
	reply, err := c.ai.Chat(ctx, user.CurrentModel, messages)
	latency := int(time.Since(start).Milliseconds())
	provider := c.providerFor(user.CurrentModel)
	if err != nil {
		metrics.ObserveChatUsage(provider, user.CurrentModel, 0, 0, latency, false)
		return "", err
	}

	tokensIn, _ := c.ai.CountTokens(ctx, user.CurrentModel, messages)
	tokensOut, _ := c.ai.CountTokens(ctx, user.CurrentModel, []adapter.Message{{Role: "assistant", Content: reply}})
	metrics.ObserveChatUsage(provider, user.CurrentModel, tokensIn, tokensOut, latency, true)

	entry := model.HistoryEntry{
		Model:     user.CurrentModel,
		Message:   text,
		Response:  reply,
		Timestamp: time.Now(),
	}
	cost := c.billing.CostFor(user, OpText)
	if err := c.users.DebitAndAppendHistory(ctx, repository.NoTX, userID, cost, entry, user.CurrentAgentID); err != nil {
		return "", err
	}
	metrics.AddTokensDebited(OpText, cost)
	return reply, nil
}

func (c *chatUC) ReadImage(ctx context.Context, userID int64, image []byte) (string, error) {
	defer logging.TraceDuration(c.log, "ChatUC.ReadImage")()

	if len(image) == 0 {
		return "", domain.ErrInvalidArgument
	}

	unlock, err := c.lock(ctx, userID)
	if err != nil {
		return "", err
	}
	defer unlock()

	user, err := c.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return "", err
	}
	if err := c.billing.EnsureAffordable(user, OpImage); err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := c.ai.ReadImage(ctx, user.CurrentModel, image)
	latency := int(time.Since(start).Milliseconds())
	provider := c.providerFor(user.CurrentModel)
	metrics.ObserveChatUsage(provider, user.CurrentModel, 0, 0, latency, err == nil)
	if err != nil {
		return "", err
	}

	entry := model.HistoryEntry{
		Model:     user.CurrentModel,
		Message:   "", // image turns carry no text; the empty message keeps them out of the context window
		Response:  reply,
		Timestamp: time.Now(),
	}
	cost := c.billing.CostFor(user, OpImage)
	if err := c.users.DebitAndAppendHistory(ctx, repository.NoTX, userID, cost, entry, user.CurrentAgentID); err != nil {
		return "", err
	}
	metrics.AddTokensDebited(OpImage, cost)
	return reply, nil
}

func (c *chatUC) GenerateImage(ctx context.Context, userID int64, prompt string) (string, error) {
	defer logging.TraceDuration(c.log, "ChatUC.GenerateImage")()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", domain.ErrInvalidArgument
	}

	unlock, err := c.lock(ctx, userID)
	if err != nil {
		return "", err
	}
	defer unlock()

	user, err := c.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return "", err
	}
	if err := c.billing.EnsureAffordable(user, OpImage); err != nil {
		return "", err
	}

	imageModel := c.imageModel
	if strings.HasPrefix(strings.ToLower(user.CurrentModel), "grok") {
		imageModel = "grok-2-image"
	}

	url, err := c.ai.GenerateImage(ctx, imageModel, prompt)
	metrics.IncImageGenerated(imageModel, err == nil)
	if err != nil {
		return "", err
	}

	entry := model.HistoryEntry{
		Model:     imageModel,
		Message:   "",
		Response:  url,
		Timestamp: time.Now(),
	}
	cost := c.billing.CostFor(user, OpImage)
	if err := c.users.DebitAndAppendHistory(ctx, repository.NoTX, userID, cost, entry, user.CurrentAgentID); err != nil {
		return "", err
	}
	metrics.AddTokensDebited(OpImage, cost)
	return url, nil
}

func (c *chatUC) TextToSpeech(ctx context.Context, userID int64, text string) ([]byte, error) {
	defer logging.TraceDuration(c.log, "ChatUC.TextToSpeech")()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrInvalidArgument
	}

	unlock, err := c.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := c.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if err := c.billing.EnsureAffordable(user, OpAudio); err != nil {
		return nil, err
	}

	audio, err := c.ai.TextToSpeech(ctx, c.ttsModel, text)
	metrics.IncAudioGenerated(c.ttsModel, err == nil)
	if err != nil {
		return nil, err
	}

	entry := model.HistoryEntry{
		Model:     c.ttsModel,
		Message:   "",
		Response:  "",
		Timestamp: time.Now(),
	}
	cost := c.billing.CostFor(user, OpAudio)
	if err := c.users.DebitAndAppendHistory(ctx, repository.NoTX, userID, cost, entry, user.CurrentAgentID); err != nil {
		return nil, err
	}
	metrics.AddTokensDebited(OpAudio, cost)
	return audio, nil
}

func (c *chatUC) Reset(ctx context.Context, userID int64) error {
	defer logging.TraceDuration(c.log, "ChatUC.Reset")()

	user, err := c.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	return c.users.ClearHistory(ctx, repository.NoTX, userID, user.CurrentAgentID)
}

func (c *chatUC) ListModels(ctx context.Context) ([]string, error) {
	return c.ai.ListModels(ctx)
}

func (c *chatUC) lock(ctx context.Context, userID int64) (func(), error) {
	key := redis.UserChatLockKey(userID)
	token, err := c.locker.TryLock(ctx, key, chatLockTTL)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := c.locker.Unlock(context.Background(), key, token); err != nil {
			c.log.Warn().Err(err).Int64("user_id", userID).Msg("chat unlock failed")
		}
	}, nil
}

// buildContext assembles the provider messages: the system prompt (the active
// agent's, or the configured persona in default mode, with the configured
// suffix appended), up to ContextWindow recent turns from the active bucket,
// and the new user message. Only complete turns qualify: an empty message
// (image and audio ops) or an empty response would break the alternating
// user/assistant shape.
func (c *chatUC) buildContext(user *model.User, text string) []adapter.Message {
	history := user.CurrentHistory()

	recent := make([]model.HistoryEntry, 0, ContextWindow)
	for i := len(history) - 1; i >= 0 && len(recent) < ContextWindow; i-- {
		if history[i].Message == "" || history[i].Response == "" {
			continue
		}
		recent = append(recent, history[i])
	}

	system := c.systemPrompt
	if agent := user.CurrentAgent(); agent != nil {
		system = agent.SystemPrompt
	}
	if system != "" && c.promptSuffix != "" {
		system += "\n" + c.promptSuffix
	}

	messages := make([]adapter.Message, 0, 2*len(recent)+2)
	if system != "" {
		messages = append(messages, adapter.Message{Role: "system", Content: system})
	}
	for i := len(recent) - 1; i >= 0; i-- {
		messages = append(messages, adapter.Message{Role: "user", Content: recent[i].Message})
		messages = append(messages, adapter.Message{Role: "assistant", Content: recent[i].Response})
	}
	return append(messages, adapter.Message{Role: "user", Content: text})
}
