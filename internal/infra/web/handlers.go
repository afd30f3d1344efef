package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/infra/metrics"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if !s.auth.CheckCredentials(req.Username, req.Password) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			http.Error(w, "Failed to mint session", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}

func (s *Server) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		total, err := s.userUC.Count(ctx)
		if err != nil {
			http.Error(w, "Failed to get totals", http.StatusInternalServerError)
			return
		}

		users, err := s.userUC.List(ctx)
		if err != nil {
			http.Error(w, "Failed to list users", http.StatusInternalServerError)
			return
		}
		var balance, agents int64
		withAccess := 0
		for _, u := range users {
			balance += u.Balance
			agents += int64(len(u.CustomAgents))
			if u.AccessGranted {
				withAccess++
			}
		}

		response := struct {
			TotalUsers      int   `json:"total_users"`
			UsersWithAccess int   `json:"users_with_access"`
			TotalBalance    int64 `json:"total_balance"`
			TotalAgents     int64 `json:"total_agents"`
		}{
			TotalUsers:      total,
			UsersWithAccess: withAccess,
			TotalBalance:    balance,
			TotalAgents:     agents,
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}
}

type userSummary struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Balance       int64  `json:"balance"`
	CurrentModel  string `json:"current_model"`
	Tariff        string `json:"tariff"`
	AccessGranted bool   `json:"access_granted"`
	Agents        int    `json:"agents"`
	Invited       int    `json:"invited"`
}

func (s *Server) usersListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.userUC.List(r.Context())
		if err != nil {
			http.Error(w, "Failed to list users", http.StatusInternalServerError)
			return
		}
		items := make([]userSummary, 0, len(users))
		for _, u := range users {
			items = append(items, userSummary{
				ID:            u.ID,
				Username:      u.Username,
				Balance:       u.Balance,
				CurrentModel:  u.CurrentModel,
				Tariff:        u.Tariff,
				AccessGranted: u.AccessGranted,
				Agents:        len(u.CustomAgents),
				Invited:       len(u.InvitedUsers),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}
}

func (s *Server) userGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid user id", http.StatusBadRequest)
			return
		}
		user, err := s.userUC.Get(r.Context(), id)
		if err != nil {
			if err == domain.ErrNotFound {
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to get user", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	}
}

type paymentWebhookRequest struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// paymentWebhookHandler settles gateway callbacks. Settlement is idempotent,
// so gateway retries are acknowledged without crediting twice.
func (s *Server) paymentWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.webhookSecret == "" ||
			subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Secret")), []byte(s.webhookSecret)) != 1 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		var req paymentWebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Status != "paid" && req.Status != "completed" {
			metrics.IncPayment("failed")
			w.WriteHeader(http.StatusOK)
			return
		}

		userID, tokens, applied, err := s.billingUC.Settle(r.Context(), req.PaymentID)
		if err != nil {
			s.log.Error().Err(err).Str("payment_id", req.PaymentID).Msg("payment settlement failed")
			http.Error(w, "Settlement failed", http.StatusInternalServerError)
			return
		}
		if applied {
			s.notifyPaid(r, userID, tokens)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"applied": applied})
	}
}

func (s *Server) notifyPaid(r *http.Request, userID, tokens int64) {
	ctx := r.Context()
	user, err := s.userUC.Get(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to load user after settlement")
		return
	}
	text := s.translator.T(user.LanguageCode, "payment_success", tokens, user.Balance)
	if err := s.bot.SendMessage(ctx, userID, text); err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("payment notification failed")
	}
}
