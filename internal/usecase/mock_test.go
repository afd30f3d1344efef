//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func strPtr(s string) *string { return &s }

// cloneSlice copies a slice while keeping nil and empty distinct, the way a
// round-trip through the database does.
func cloneSlice[T any](v []T) []T {
	if v == nil {
		return nil
	}
	out := make([]T, len(v))
	copy(out, v)
	return out
}

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	out := *u
	out.InvitedUsers = cloneSlice(u.InvitedUsers)
	out.MessagesHistory = cloneSlice(u.MessagesHistory)
	out.CustomAgents = cloneSlice(u.CustomAgents)
	out.Payments = cloneSlice(u.Payments)
	if u.CurrentAgentID != nil {
		id := *u.CurrentAgentID
		out.CurrentAgentID = &id
	}
	if u.LastDailyReward != nil {
		ts := *u.LastDailyReward
		out.LastDailyReward = &ts
	}
	out.AgentHistories = make(map[string][]model.HistoryEntry, len(u.AgentHistories))
	for k, v := range u.AgentHistories {
		out.AgentHistories[k] = append([]model.HistoryEntry(nil), v...)
	}
	return &out
}

// =============================
// Repositories
// =============================

// ---- Mock TransactionManager ----

// MockTxManager runs the callback directly; the nil tx exercises the
// repositories' non-transactional path.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock UserRepository ----

// MockUserRepo keeps users in a map and mirrors the guarded single-statement
// semantics of the Postgres repository. Reads hand out deep copies so a test
// mutating a returned user cannot leak into the store, same as a DB read.
type MockUserRepo struct {
	mu    sync.Mutex
	users map[int64]*model.User

	FindByIDFunc        func(ctx context.Context, tx repository.Tx, userID int64) (*model.User, error)
	SaveFunc            func(ctx context.Context, tx repository.Tx, u *model.User) error
	UpdateFieldsFunc    func(ctx context.Context, tx repository.Tx, userID int64, fields map[string]any) error
	AppendInviteFunc    func(ctx context.Context, tx repository.Tx, inviterID, inviteeID int64, bonus int64, grantAccess bool) (bool, error)
	SettlePaymentFunc   func(ctx context.Context, tx repository.Tx, paymentID string) (int64, int64, bool, error)
	DebitAndAppendFunc  func(ctx context.Context, tx repository.Tx, userID int64, cost int64, entry model.HistoryEntry, agentID *string) error
	GrantDailyFunc      func(ctx context.Context, tx repository.Tx, userID int64, amount int64, cutoff time.Time) (bool, error)
	ListFunc            func(ctx context.Context, tx repository.Tx) ([]*model.User, error)
	SetCurrentAgentFunc func(ctx context.Context, tx repository.Tx, userID int64, agentID *string) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{users: make(map[int64]*model.User)}
}

// Seed stores the user directly, bypassing Save's insert-only guard.
func (m *MockUserRepo) Seed(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = cloneUser(u)
}

// Stored returns the raw record for assertions, or nil when absent.
func (m *MockUserRepo) Stored(userID int64) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneUser(m.users[userID])
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, u)
	}
	// The users table declares its collection columns NOT NULL; a nil slice
	// or map would be encoded as SQL NULL and rejected there.
	if u.InvitedUsers == nil || u.MessagesHistory == nil || u.AgentHistories == nil {
		return fmt.Errorf("save user %d: nil collection violates not-null column", u.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return nil
	}
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, userID int64) (*model.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *MockUserRepo) List(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, cloneUser(u))
	}
	return out, nil
}

func (m *MockUserRepo) ListWithoutAccess(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.users {
		if !u.AccessGranted {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (m *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *MockUserRepo) UpdateFields(ctx context.Context, tx repository.Tx, userID int64, fields map[string]any) error {
	if m.UpdateFieldsFunc != nil {
		return m.UpdateFieldsFunc(ctx, tx, userID, fields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for col, val := range fields {
		switch col {
		case "username":
			u.Username = val.(string)
		case "language_code":
			u.LanguageCode = val.(string)
		case "balance":
			u.Balance = val.(int64)
		case "current_model":
			u.CurrentModel = val.(string)
		case "tariff":
			u.Tariff = val.(string)
		case "access_granted":
			u.AccessGranted = val.(bool)
		case "current_agent_id":
			if val == nil {
				u.CurrentAgentID = nil
			} else {
				u.CurrentAgentID = strPtr(val.(string))
			}
		default:
			return fmt.Errorf("%w: unknown field %q", domain.ErrInvalidArgument, col)
		}
	}
	return nil
}

func (m *MockUserRepo) DebitAndAppendHistory(ctx context.Context, tx repository.Tx, userID int64, cost int64, entry model.HistoryEntry, agentID *string) error {
	if m.DebitAndAppendFunc != nil {
		return m.DebitAndAppendFunc(ctx, tx, userID, cost, entry, agentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Balance -= cost
	if agentID == nil {
		u.MessagesHistory = append(u.MessagesHistory, entry)
		return nil
	}
	u.AgentHistories[*agentID] = append(u.AgentHistories[*agentID], entry)
	return nil
}

func (m *MockUserRepo) ClearHistory(ctx context.Context, tx repository.Tx, userID int64, agentID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if agentID == nil {
		u.MessagesHistory = []model.HistoryEntry{}
		return nil
	}
	u.AgentHistories[*agentID] = []model.HistoryEntry{}
	return nil
}

func (m *MockUserRepo) AppendInvite(ctx context.Context, tx repository.Tx, inviterID, inviteeID int64, bonus int64, grantAccess bool) (bool, error) {
	if m.AppendInviteFunc != nil {
		return m.AppendInviteFunc(ctx, tx, inviterID, inviteeID, bonus, grantAccess)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[inviterID]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, id := range u.InvitedUsers {
		if id == inviteeID {
			return false, nil
		}
	}
	u.InvitedUsers = append(u.InvitedUsers, inviteeID)
	u.Balance += bonus
	u.AccessGranted = u.AccessGranted || grantAccess
	return true, nil
}

func (m *MockUserRepo) GrantDailyReward(ctx context.Context, tx repository.Tx, userID int64, amount int64, cutoff time.Time) (bool, error) {
	if m.GrantDailyFunc != nil {
		return m.GrantDailyFunc(ctx, tx, userID, amount, cutoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	if u.LastDailyReward != nil && !u.LastDailyReward.Before(cutoff) {
		return false, nil
	}
	now := time.Now()
	u.Balance = amount
	u.LastDailyReward = &now
	return true, nil
}

func (m *MockUserRepo) AddAgent(ctx context.Context, tx repository.Tx, userID int64, agent *model.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if len(u.CustomAgents) >= model.MaxAgentsPerUser {
		return domain.ErrAgentLimitReached
	}
	u.CustomAgents = append(u.CustomAgents, *agent)
	return nil
}

func (m *MockUserRepo) UpdateAgent(ctx context.Context, tx repository.Tx, userID int64, agent *model.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range u.CustomAgents {
		if u.CustomAgents[i].AgentID == agent.AgentID {
			u.CustomAgents[i] = *agent
			return nil
		}
	}
	return domain.ErrAgentNotFound
}

func (m *MockUserRepo) DeleteAgent(ctx context.Context, tx repository.Tx, userID int64, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	idx := -1
	for i := range u.CustomAgents {
		if u.CustomAgents[i].AgentID == agentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrAgentNotFound
	}
	u.CustomAgents = append(u.CustomAgents[:idx], u.CustomAgents[idx+1:]...)
	delete(u.AgentHistories, agentID)
	if u.CurrentAgentID != nil && *u.CurrentAgentID == agentID {
		u.CurrentAgentID = nil
	}
	return nil
}

func (m *MockUserRepo) SetCurrentAgent(ctx context.Context, tx repository.Tx, userID int64, agentID *string) error {
	if m.SetCurrentAgentFunc != nil {
		return m.SetCurrentAgentFunc(ctx, tx, userID, agentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if agentID == nil {
		u.CurrentAgentID = nil
		return nil
	}
	if u.AgentByID(*agentID) == nil {
		return domain.ErrAgentNotFound
	}
	id := *agentID
	u.CurrentAgentID = &id
	if _, ok := u.AgentHistories[id]; !ok {
		u.AgentHistories[id] = []model.HistoryEntry{}
	}
	return nil
}

func (m *MockUserRepo) AddPendingPayment(ctx context.Context, tx repository.Tx, userID int64, p model.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Payments = append(u.Payments, p)
	return nil
}

func (m *MockUserRepo) SettlePayment(ctx context.Context, tx repository.Tx, paymentID string) (int64, int64, bool, error) {
	if m.SettlePaymentFunc != nil {
		return m.SettlePaymentFunc(ctx, tx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		for i := range u.Payments {
			p := &u.Payments[i]
			if p.PaymentID != paymentID || p.Status != "pending" {
				continue
			}
			p.Status = "completed"
			u.Balance += p.Tokens
			u.Tariff = model.TariffPaid
			return u.ID, p.Tokens, true, nil
		}
	}
	return 0, 0, false, nil
}

func (m *MockUserRepo) ListDailyRewardDue(ctx context.Context, tx repository.Tx, tariff string, cutoff time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, u := range m.users {
		if u.Tariff != tariff {
			continue
		}
		if u.LastDailyReward == nil || u.LastDailyReward.Before(cutoff) {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// =============================
// Adapters
// =============================

// ---- Mock TelegramBotAdapter ----

type SentMessage struct {
	ChatID int64
	Text   string
}

type MockTelegramBot struct {
	mu     sync.Mutex
	Sent   []SentMessage
	Member bool // IsChannelMember answer

	SendMessageFunc     func(ctx context.Context, telegramID int64, text string) error
	IsChannelMemberFunc func(ctx context.Context, channel string, telegramID int64) (bool, error)
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, telegramID int64, text string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, telegramID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMessage{ChatID: telegramID, Text: text})
	return nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, telegramID, text)
}

func (m *MockTelegramBot) SendPhotoURL(ctx context.Context, telegramID int64, url string) error {
	return m.SendMessage(ctx, telegramID, url)
}

func (m *MockTelegramBot) SendAudio(ctx context.Context, telegramID int64, name string, data []byte) error {
	return m.SendMessage(ctx, telegramID, name)
}

func (m *MockTelegramBot) IsChannelMember(ctx context.Context, channel string, telegramID int64) (bool, error) {
	if m.IsChannelMemberFunc != nil {
		return m.IsChannelMemberFunc(ctx, channel, telegramID)
	}
	return m.Member, nil
}

func (m *MockTelegramBot) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// ---- Mock AIServiceAdapter ----

type MockAI struct {
	mu sync.Mutex

	Models []string
	Reply  string

	// LastChat records the last Chat invocation for context assertions.
	LastChatModel    string
	LastChatMessages []adapter.Message

	ChatFunc          func(ctx context.Context, model string, messages []adapter.Message) (string, error)
	ReadImageFunc     func(ctx context.Context, model string, image []byte) (string, error)
	GenerateImageFunc func(ctx context.Context, model, prompt string) (string, error)
	TextToSpeechFunc  func(ctx context.Context, model, text string) ([]byte, error)
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) ListModels(ctx context.Context) ([]string, error) {
	if len(m.Models) > 0 {
		return m.Models, nil
	}
	return []string{"gpt-4o-mini"}, nil
}

func (m *MockAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, msg := range messages {
		n += len(msg.Content)
	}
	return n / 4, nil
}

func (m *MockAI) Chat(ctx context.Context, modelName string, messages []adapter.Message) (string, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, modelName, messages)
	}
	m.mu.Lock()
	m.LastChatModel = modelName
	m.LastChatMessages = append([]adapter.Message(nil), messages...)
	m.mu.Unlock()
	if m.Reply != "" {
		return m.Reply, nil
	}
	return "mock reply", nil
}

func (m *MockAI) ReadImage(ctx context.Context, modelName string, image []byte) (string, error) {
	if m.ReadImageFunc != nil {
		return m.ReadImageFunc(ctx, modelName, image)
	}
	return "a picture of a mock", nil
}

func (m *MockAI) GenerateImage(ctx context.Context, modelName, prompt string) (string, error) {
	if m.GenerateImageFunc != nil {
		return m.GenerateImageFunc(ctx, modelName, prompt)
	}
	return "https://img.example/" + modelName, nil
}

func (m *MockAI) TextToSpeech(ctx context.Context, modelName, text string) ([]byte, error) {
	if m.TextToSpeechFunc != nil {
		return m.TextToSpeechFunc(ctx, modelName, text)
	}
	return []byte("mp3"), nil
}

// ---- Mock Locker ----

// MockLocker grants every lock unless Busy is set.
type MockLocker struct {
	mu     sync.Mutex
	Busy   bool
	Locked []string // keys in TryLock order

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Busy {
		return "", domain.ErrUserLocked
	}
	m.Locked = append(m.Locked, key)
	return fmt.Sprintf("tok-%d", len(m.Locked)), nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error { return nil }

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu       sync.Mutex
	Created  int
	Checkout *adapter.Checkout

	CreateCheckoutFunc func(ctx context.Context, amount int64, currency, description string) (*adapter.Checkout, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) CreateCheckout(ctx context.Context, amount int64, currency, description string) (*adapter.Checkout, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, amount, currency, description)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created++
	if m.Checkout != nil {
		return m.Checkout, nil
	}
	return &adapter.Checkout{
		PaymentID: fmt.Sprintf("pay-%d", m.Created),
		URL:       fmt.Sprintf("https://pay.example/%d", m.Created),
	}, nil
}
