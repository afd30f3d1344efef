package repository

import (
	"context"
	"time"

	"telegram-llm-bot/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

// UserRepository is the port for the per-user document store. Methods that
// couple several effects (DebitAndAppendHistory, DeleteAgent, AppendInvite,
// GrantDailyReward, SettlePayment) must apply them in ONE storage operation so
// a crash cannot observe a partial write.
type UserRepository interface {
	// Save inserts the user if absent; an existing record is left untouched.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, userID int64) (*model.User, error)
	List(ctx context.Context, tx Tx) ([]*model.User, error)
	ListWithoutAccess(ctx context.Context, tx Tx) ([]*model.User, error)
	CountUsers(ctx context.Context, tx Tx) (int, error)

	// UpdateFields merges the given column values into the record,
	// last-write-wins. Unknown field names are rejected.
	UpdateFields(ctx context.Context, tx Tx, userID int64, fields map[string]any) error

	// DebitAndAppendHistory decrements balance by cost and appends entry to the
	// default history or, when agentID is non-nil, to that agent's bucket
	// (initialized on first write). No balance pre-check happens here.
	DebitAndAppendHistory(ctx context.Context, tx Tx, userID int64, cost int64, entry model.HistoryEntry, agentID *string) error

	// ClearHistory empties exactly one bucket: the default one when agentID is
	// nil, otherwise that agent's bucket.
	ClearHistory(ctx context.Context, tx Tx, userID int64, agentID *string) error

	// AppendInvite records inviteeID in the inviter's invited list, credits
	// bonus tokens and optionally flips access, all in one guarded update.
	// Returns false without error when the invitee is already listed.
	AppendInvite(ctx context.Context, tx Tx, inviterID, inviteeID int64, bonus int64, grantAccess bool) (bool, error)

	// GrantDailyReward sets balance to amount and stamps last_daily_reward,
	// guarded by last_daily_reward being unset or older than cutoff.
	// Returns false when the guard rejects (already granted today).
	GrantDailyReward(ctx context.Context, tx Tx, userID int64, amount int64, cutoff time.Time) (bool, error)

	// Agents
	AddAgent(ctx context.Context, tx Tx, userID int64, agent *model.Agent) error
	UpdateAgent(ctx context.Context, tx Tx, userID int64, agent *model.Agent) error
	// DeleteAgent removes the agent, drops its history bucket and clears a
	// matching current_agent_id in one update.
	DeleteAgent(ctx context.Context, tx Tx, userID int64, agentID string) error
	SetCurrentAgent(ctx context.Context, tx Tx, userID int64, agentID *string) error

	// Payments
	AddPendingPayment(ctx context.Context, tx Tx, userID int64, p model.PendingPayment) error
	// SettlePayment marks the pending payment with the given id completed and
	// credits its tokens in one update. Returns the owner and false when the
	// payment is unknown or not pending.
	SettlePayment(ctx context.Context, tx Tx, paymentID string) (userID int64, tokens int64, applied bool, err error)

	// ListDailyRewardDue returns ids of users whose last_daily_reward is unset
	// or older than cutoff and who are on the given tariff.
	ListDailyRewardDue(ctx context.Context, tx Tx, tariff string, cutoff time.Time) ([]int64, error)
}
