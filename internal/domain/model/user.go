package model

import (
	"time"

	"telegram-llm-bot/internal/domain"
)

const (
	TariffFree = "free"
	TariffPaid = "paid"
)

// HistoryEntry is one request/response turn. Image turns are recorded with an
// empty Message so they never re-enter the text context window.
type HistoryEntry struct {
	Model     string    `json:"model"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingPayment tracks a checkout initiated from the bot until the gateway
// callback settles it.
type PendingPayment struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Tokens    int64  `json:"tokens"`
	Status    string `json:"status"` // "pending" | "completed" | "failed"
}

// User is the aggregate root: one document-shaped record per Telegram user.
// The embedded agent list and history buckets always travel with the user so
// a single fetch gives handlers everything they need for one update.
type User struct {
	ID              int64
	Username        string
	LanguageCode    string
	Balance         int64
	CurrentModel    string
	Tariff          string
	AccessGranted   bool
	LastDailyReward *time.Time
	InvitedUsers    []int64
	CreatedAt       time.Time

	MessagesHistory []HistoryEntry
	CurrentAgentID  *string
	CustomAgents    []Agent
	AgentHistories  map[string][]HistoryEntry
	Payments        []PendingPayment
}

func NewUser(id int64, username, languageCode, defaultModel string) (*User, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if languageCode == "" {
		languageCode = "en"
	}
	return &User{
		ID:              id,
		Username:        username,
		LanguageCode:    languageCode,
		Balance:         0,
		CurrentModel:    defaultModel,
		Tariff:          TariffFree,
		AccessGranted:   false,
		InvitedUsers:    []int64{}, // nil would reach the NOT NULL array column as SQL NULL
		CreatedAt:       time.Now(),
		MessagesHistory: []HistoryEntry{},
		AgentHistories:  map[string][]HistoryEntry{},
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == 0 }

// CurrentAgent resolves the active agent, or nil in default mode. A dangling
// pointer (agent deleted elsewhere) also resolves to nil.
func (u *User) CurrentAgent() *Agent {
	if u.CurrentAgentID == nil {
		return nil
	}
	return u.AgentByID(*u.CurrentAgentID)
}

func (u *User) AgentByID(agentID string) *Agent {
	for i := range u.CustomAgents {
		if u.CustomAgents[i].AgentID == agentID {
			return &u.CustomAgents[i]
		}
	}
	return nil
}

// CurrentHistory returns the history bucket for the active mode. A bucket that
// was never written reads as empty.
func (u *User) CurrentHistory() []HistoryEntry {
	if u.CurrentAgentID != nil {
		return u.AgentHistories[*u.CurrentAgentID]
	}
	return u.MessagesHistory
}

func (u *User) HasInvited(inviteeID int64) bool {
	for _, id := range u.InvitedUsers {
		if id == inviteeID {
			return true
		}
	}
	return false
}

func (u *User) CanAfford(cost int64) bool { return u.Balance >= cost }
