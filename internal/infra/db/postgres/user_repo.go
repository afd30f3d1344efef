package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

const userColumns = `user_id, username, language_code, created_at, balance, current_model, tariff,
       access_granted, last_daily_reward, invited_users, current_agent_id,
       custom_agents, messages_history, agent_histories, payments`

// PostgresUserRepo stores each user as one row; agents, histories and payments
// live in jsonb columns so coupled effects stay single-statement atomic.
type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (user_id) DO NOTHING;`

	agents, err := json.Marshal(orEmptyAgents(u.CustomAgents))
	if err != nil {
		return err
	}
	history, err := json.Marshal(orEmptyHistory(u.MessagesHistory))
	if err != nil {
		return err
	}
	buckets, err := json.Marshal(orEmptyBuckets(u.AgentHistories))
	if err != nil {
		return err
	}
	payments, err := json.Marshal(orEmptyPayments(u.Payments))
	if err != nil {
		return err
	}

	_, err = execSQL(ctx, r.pool, tx, q,
		u.ID, u.Username, u.LanguageCode, u.CreatedAt, u.Balance, u.CurrentModel, u.Tariff,
		u.AccessGranted, u.LastDailyReward, u.InvitedUsers, u.CurrentAgentID,
		agents, history, buckets, payments)
	return err
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, userID int64) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE user_id=$1;`, userID)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *PostgresUserRepo) List(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return r.listWhere(ctx, tx, "")
}

func (r *PostgresUserRepo) ListWithoutAccess(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return r.listWhere(ctx, tx, "WHERE NOT access_granted")
}

func (r *PostgresUserRepo) listWhere(ctx context.Context, tx repository.Tx, where string) ([]*model.User, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users `+where+` ORDER BY user_id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// updatableColumns whitelists what UpdateFields may touch.
var updatableColumns = map[string]struct{}{
	"username":         {},
	"language_code":    {},
	"balance":          {},
	"current_model":    {},
	"tariff":           {},
	"access_granted":   {},
	"current_agent_id": {},
}

func (r *PostgresUserRepo) UpdateFields(ctx context.Context, tx repository.Tx, userID int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	set := make([]string, 0, len(fields))
	args := []interface{}{userID}
	for col, val := range fields {
		if _, ok := updatableColumns[col]; !ok {
			return fmt.Errorf("%w: unknown field %q", domain.ErrInvalidArgument, col)
		}
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	q := fmt.Sprintf("UPDATE users SET %s WHERE user_id=$1;", strings.Join(set, ", "))
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) DebitAndAppendHistory(ctx context.Context, tx repository.Tx, userID int64, cost int64, entry model.HistoryEntry, agentID *string) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	var tagQ string
	var args []interface{}
	if agentID == nil {
		tagQ = `
UPDATE users SET balance = balance - $2,
       messages_history = messages_history || $3::jsonb
 WHERE user_id=$1;`
		args = []interface{}{userID, cost, payload}
	} else {
		tagQ = `
UPDATE users SET balance = balance - $2,
       agent_histories = jsonb_set(agent_histories, ARRAY[$4],
           COALESCE(agent_histories->$4, '[]'::jsonb) || $3::jsonb)
 WHERE user_id=$1;`
		args = []interface{}{userID, cost, payload, *agentID}
	}

	tag, err := execSQL(ctx, r.pool, tx, tagQ, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) ClearHistory(ctx context.Context, tx repository.Tx, userID int64, agentID *string) error {
	var q string
	var args []interface{}
	if agentID == nil {
		q = `UPDATE users SET messages_history='[]'::jsonb WHERE user_id=$1;`
		args = []interface{}{userID}
	} else {
		q = `UPDATE users SET agent_histories = jsonb_set(agent_histories, ARRAY[$2], '[]'::jsonb) WHERE user_id=$1;`
		args = []interface{}{userID, *agentID}
	}
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) AppendInvite(ctx context.Context, tx repository.Tx, inviterID, inviteeID int64, bonus int64, grantAccess bool) (bool, error) {
	const q = `
UPDATE users SET invited_users = array_append(invited_users, $2),
       balance = balance + $3,
       access_granted = access_granted OR $4
 WHERE user_id=$1 AND NOT ($2 = ANY(invited_users));`
	tag, err := execSQL(ctx, r.pool, tx, q, inviterID, inviteeID, bonus, grantAccess)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	// Guard rejected: either a duplicate invite or an unknown inviter.
	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM users WHERE user_id=$1;`, inviterID)
	if err != nil {
		return false, err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, domain.ErrNotFound
		}
		return false, err
	}
	return false, nil
}

func (r *PostgresUserRepo) GrantDailyReward(ctx context.Context, tx repository.Tx, userID int64, amount int64, cutoff time.Time) (bool, error) {
	const q = `
UPDATE users SET balance=$2, last_daily_reward=NOW()
 WHERE user_id=$1 AND (last_daily_reward IS NULL OR last_daily_reward < $3);`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, amount, cutoff)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresUserRepo) AddAgent(ctx context.Context, tx repository.Tx, userID int64, agent *model.Agent) error {
	payload, err := json.Marshal(agent)
	if err != nil {
		return err
	}
	const q = `
UPDATE users SET custom_agents = custom_agents || $2::jsonb
 WHERE user_id=$1 AND jsonb_array_length(custom_agents) < $3;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, payload, model.MaxAgentsPerUser)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if exists, err := r.exists(ctx, tx, userID); err != nil {
		return err
	} else if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAgentLimitReached
}

func (r *PostgresUserRepo) UpdateAgent(ctx context.Context, tx repository.Tx, userID int64, agent *model.Agent) error {
	payload, err := json.Marshal(agent)
	if err != nil {
		return err
	}
	const q = `
UPDATE users SET custom_agents = (
         SELECT COALESCE(jsonb_agg(CASE WHEN elem->>'agent_id' = $2 THEN $3::jsonb ELSE elem END), '[]'::jsonb)
           FROM jsonb_array_elements(custom_agents) AS elem
       )
 WHERE user_id=$1
   AND custom_agents @> jsonb_build_array(jsonb_build_object('agent_id', $2::text));`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, agent.AgentID, payload)
	if err != nil {
		return err
	}
	return r.agentRowResult(ctx, tx, userID, tag.RowsAffected())
}

func (r *PostgresUserRepo) DeleteAgent(ctx context.Context, tx repository.Tx, userID int64, agentID string) error {
	// One statement: drop the agent, its history bucket and a matching
	// current_agent_id together so no reader sees a dangling pointer.
	const q = `
UPDATE users SET
       custom_agents = (
         SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb)
           FROM jsonb_array_elements(custom_agents) AS elem
          WHERE elem->>'agent_id' <> $2
       ),
       agent_histories = agent_histories - $2,
       current_agent_id = CASE WHEN current_agent_id = $2 THEN NULL ELSE current_agent_id END
 WHERE user_id=$1
   AND custom_agents @> jsonb_build_array(jsonb_build_object('agent_id', $2::text));`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, agentID)
	if err != nil {
		return err
	}
	return r.agentRowResult(ctx, tx, userID, tag.RowsAffected())
}

func (r *PostgresUserRepo) SetCurrentAgent(ctx context.Context, tx repository.Tx, userID int64, agentID *string) error {
	if agentID == nil {
		tag, err := execSQL(ctx, r.pool, tx, `UPDATE users SET current_agent_id=NULL WHERE user_id=$1;`, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	}
	// Activating an agent initializes its history bucket so the first message
	// starts from an empty conversation rather than a missing key.
	const q = `
UPDATE users SET current_agent_id=$2,
       agent_histories = jsonb_set(agent_histories, ARRAY[$2],
           COALESCE(agent_histories->$2, '[]'::jsonb))
 WHERE user_id=$1
   AND custom_agents @> jsonb_build_array(jsonb_build_object('agent_id', $2::text));`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, *agentID)
	if err != nil {
		return err
	}
	return r.agentRowResult(ctx, tx, userID, tag.RowsAffected())
}

func (r *PostgresUserRepo) AddPendingPayment(ctx context.Context, tx repository.Tx, userID int64, p model.PendingPayment) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE users SET payments = payments || $2::jsonb WHERE user_id=$1;`, userID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) SettlePayment(ctx context.Context, tx repository.Tx, paymentID string) (int64, int64, bool, error) {
	// Credit tokens, move the buyer onto the paid tariff and flip the payment
	// status in one statement; the status='pending' filter makes retries of
	// the same callback no-ops. The paid tariff keeps the daily refill from
	// resetting a purchased balance.
	const q = `
UPDATE users u SET
       balance = u.balance + (p.elem->>'tokens')::bigint,
       tariff = 'paid',
       payments = (
         SELECT jsonb_agg(CASE WHEN e->>'payment_id' = $1
                               THEN jsonb_set(e, '{status}', '"completed"')
                               ELSE e END)
           FROM jsonb_array_elements(u.payments) AS e
       )
  FROM (
         SELECT user_id, e AS elem
           FROM users, jsonb_array_elements(payments) AS e
          WHERE e->>'payment_id' = $1 AND e->>'status' = 'pending'
          LIMIT 1
       ) p
 WHERE u.user_id = p.user_id
RETURNING u.user_id, (p.elem->>'tokens')::bigint;`

	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return 0, 0, false, err
	}
	var userID, tokens int64
	if err := row.Scan(&userID, &tokens); err != nil {
		if err == pgx.ErrNoRows {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return userID, tokens, true, nil
}

func (r *PostgresUserRepo) ListDailyRewardDue(ctx context.Context, tx repository.Tx, tariff string, cutoff time.Time) ([]int64, error) {
	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT user_id FROM users WHERE tariff=$1 AND (last_daily_reward IS NULL OR last_daily_reward < $2);`,
		tariff, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// -----------------------------
// helpers
// -----------------------------

func (r *PostgresUserRepo) exists(ctx context.Context, tx repository.Tx, userID int64) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM users WHERE user_id=$1;`, userID)
	if err != nil {
		return false, err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PostgresUserRepo) agentRowResult(ctx context.Context, tx repository.Tx, userID int64, affected int64) error {
	if affected == 1 {
		return nil
	}
	exists, err := r.exists(ctx, tx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAgentNotFound
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u        model.User
		agents   []byte
		history  []byte
		buckets  []byte
		payments []byte
	)
	if err := row.Scan(&u.ID, &u.Username, &u.LanguageCode, &u.CreatedAt, &u.Balance, &u.CurrentModel, &u.Tariff,
		&u.AccessGranted, &u.LastDailyReward, &u.InvitedUsers, &u.CurrentAgentID,
		&agents, &history, &buckets, &payments); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(agents, &u.CustomAgents); err != nil {
		return nil, fmt.Errorf("decode custom_agents: %w", err)
	}
	if err := json.Unmarshal(history, &u.MessagesHistory); err != nil {
		return nil, fmt.Errorf("decode messages_history: %w", err)
	}
	if err := json.Unmarshal(buckets, &u.AgentHistories); err != nil {
		return nil, fmt.Errorf("decode agent_histories: %w", err)
	}
	if err := json.Unmarshal(payments, &u.Payments); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return &u, nil
}

func orEmptyAgents(v []model.Agent) []model.Agent {
	if v == nil {
		return []model.Agent{}
	}
	return v
}

func orEmptyHistory(v []model.HistoryEntry) []model.HistoryEntry {
	if v == nil {
		return []model.HistoryEntry{}
	}
	return v
}

func orEmptyBuckets(v map[string][]model.HistoryEntry) map[string][]model.HistoryEntry {
	if v == nil {
		return map[string][]model.HistoryEntry{}
	}
	return v
}

func orEmptyPayments(v []model.PendingPayment) []model.PendingPayment {
	if v == nil {
		return []model.PendingPayment{}
	}
	return v
}
