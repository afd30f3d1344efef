//go:build !integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/config"
	"telegram-llm-bot/internal/domain"
	"telegram-llm-bot/internal/domain/model"
	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/infra/i18n"
	"telegram-llm-bot/internal/infra/web"
	"telegram-llm-bot/internal/usecase"
)

// -----------------------------
// stubs
// -----------------------------

type stubUserUC struct {
	users map[int64]*model.User
}

var _ usecase.UserUseCase = (*stubUserUC)(nil)

func (s *stubUserUC) GetOrCreate(ctx context.Context, userID int64, username, languageCode string) (*model.User, bool, error) {
	return s.users[userID], false, nil
}

func (s *stubUserUC) Get(ctx context.Context, userID int64) (*model.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (s *stubUserUC) Count(ctx context.Context) (int, error) { return len(s.users), nil }

func (s *stubUserUC) List(ctx context.Context) ([]*model.User, error) {
	out := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubUserUC) SetModel(ctx context.Context, userID int64, modelName string) error { return nil }

type stubBillingUC struct {
	SettleFunc func(ctx context.Context, paymentID string) (int64, int64, bool, error)
}

var _ usecase.BillingUseCase = (*stubBillingUC)(nil)

func (s *stubBillingUC) Cost(operation string) int64                            { return 1 }
func (s *stubBillingUC) CostFor(u *model.User, operation string) int64          { return 1 }
func (s *stubBillingUC) EnsureAffordable(u *model.User, operation string) error { return nil }

func (s *stubBillingUC) GrantDaily(ctx context.Context, userID int64) (int64, error) {
	return 0, nil
}
func (s *stubBillingUC) Packs() []config.TokenPack { return nil }
func (s *stubBillingUC) Currency() string          { return "usd" }
func (s *stubBillingUC) CreateCheckout(ctx context.Context, userID int64, pack config.TokenPack) (string, error) {
	return "", nil
}
func (s *stubBillingUC) Settle(ctx context.Context, paymentID string) (int64, int64, bool, error) {
	if s.SettleFunc != nil {
		return s.SettleFunc(ctx, paymentID)
	}
	return 0, 0, false, nil
}

type botRecorder struct {
	Sent []string
}

var _ adapter.TelegramBotAdapter = (*botRecorder)(nil)

func (b *botRecorder) SendMessage(ctx context.Context, telegramID int64, text string) error {
	b.Sent = append(b.Sent, text)
	return nil
}

func (b *botRecorder) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	return b.SendMessage(ctx, telegramID, text)
}

func (b *botRecorder) SendPhotoURL(ctx context.Context, telegramID int64, url string) error {
	return nil
}

func (b *botRecorder) SendAudio(ctx context.Context, telegramID int64, name string, data []byte) error {
	return nil
}

func (b *botRecorder) IsChannelMember(ctx context.Context, channel string, telegramID int64) (bool, error) {
	return true, nil
}

// -----------------------------
// fixture
// -----------------------------

func newTestServer(t *testing.T, users map[int64]*model.User, billing *stubBillingUC) (*web.Server, *botRecorder) {
	t.Helper()
	if users == nil {
		users = map[int64]*model.User{}
	}
	if billing == nil {
		billing = &stubBillingUC{}
	}
	translator, err := i18n.NewTranslator(i18n.LocalesFS)
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	logger := zerolog.Nop()
	auth := web.NewAuthManager("test-secret", "admin", "hunter2", false, time.Minute)
	bot := &botRecorder{}
	srv := web.NewServer(&stubUserUC{users: users}, billing, bot, translator, auth, "hook-secret", &logger)
	return srv, bot
}

func seedWebUser(id int64, balance int64, access bool) *model.User {
	u, _ := model.NewUser(id, "u", "en", "gpt-4o-mini")
	u.Balance = balance
	u.AccessGranted = access
	return u
}

func login(t *testing.T, handler http.Handler) string {
	t.Helper()
	body := bytes.NewBufferString(`{"username":"admin","password":"hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp["token"] == "" {
		t.Fatal("empty token")
	}
	return resp["token"]
}

// -----------------------------
// tests
// -----------------------------

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestServer_Login(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	router := srv.Router()

	t.Run("wrong credentials", func(t *testing.T) {
		body := bytes.NewBufferString(`{"username":"admin","password":"wrong"}`)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/login", body))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("valid credentials mint a token", func(t *testing.T) {
		_ = login(t, router)
	})
}

func TestServer_AuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, map[int64]*model.User{1: seedWebUser(1, 10, true)}, nil)
	router := srv.Router()

	t.Run("unauthenticated request is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("bearer token passes", func(t *testing.T) {
		token := login(t, router)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})
}

func TestServer_Stats(t *testing.T) {
	users := map[int64]*model.User{
		1: seedWebUser(1, 10, true),
		2: seedWebUser(2, 5, false),
	}
	agent, _ := model.NewAgent("Tutor", "prompt")
	users[1].CustomAgents = []model.Agent{*agent}

	srv, _ := newTestServer(t, users, nil)
	router := srv.Router()
	token := login(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		TotalUsers      int   `json:"total_users"`
		UsersWithAccess int   `json:"users_with_access"`
		TotalBalance    int64 `json:"total_balance"`
		TotalAgents     int64 `json:"total_agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalUsers != 2 || resp.UsersWithAccess != 1 || resp.TotalBalance != 15 || resp.TotalAgents != 1 {
		t.Fatalf("stats = %+v", resp)
	}
}

func TestServer_UserGet(t *testing.T) {
	srv, _ := newTestServer(t, map[int64]*model.User{1: seedWebUser(1, 10, true)}, nil)
	router := srv.Router()
	token := login(t, router)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := get("/api/v1/users/1"); rec.Code != http.StatusOK {
		t.Fatalf("known user status = %d", rec.Code)
	}
	if rec := get("/api/v1/users/99"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d", rec.Code)
	}
	if rec := get("/api/v1/users/abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestServer_PaymentWebhook(t *testing.T) {
	post := func(router http.Handler, secret, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook/payment", bytes.NewBufferString(body))
		if secret != "" {
			req.Header.Set("X-Webhook-Secret", secret)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("wrong secret", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, nil)
		rec := post(srv.Router(), "nope", `{"payment_id":"p1","status":"paid"}`)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, nil)
		rec := post(srv.Router(), "hook-secret", `{`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("non-paid status is acknowledged without settling", func(t *testing.T) {
		settled := false
		billing := &stubBillingUC{
			SettleFunc: func(ctx context.Context, paymentID string) (int64, int64, bool, error) {
				settled = true
				return 0, 0, false, nil
			},
		}
		srv, _ := newTestServer(t, nil, billing)
		rec := post(srv.Router(), "hook-secret", `{"payment_id":"p1","status":"failed"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if settled {
			t.Fatal("failed callback reached settlement")
		}
	})

	t.Run("paid callback settles and notifies the user", func(t *testing.T) {
		billing := &stubBillingUC{
			SettleFunc: func(ctx context.Context, paymentID string) (int64, int64, bool, error) {
				if paymentID != "p1" {
					t.Fatalf("payment id = %q", paymentID)
				}
				return 1, 100, true, nil
			},
		}
		srv, bot := newTestServer(t, map[int64]*model.User{1: seedWebUser(1, 100, true)}, billing)
		rec := post(srv.Router(), "hook-secret", `{"payment_id":"p1","status":"paid"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp map[string]bool
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !resp["applied"] {
			t.Fatal("applied = false")
		}
		if len(bot.Sent) != 1 {
			t.Fatalf("notifications = %d, want 1", len(bot.Sent))
		}
	})

	t.Run("replayed callback is acknowledged quietly", func(t *testing.T) {
		billing := &stubBillingUC{
			SettleFunc: func(ctx context.Context, paymentID string) (int64, int64, bool, error) {
				return 0, 0, false, nil
			},
		}
		srv, bot := newTestServer(t, nil, billing)
		rec := post(srv.Router(), "hook-secret", `{"payment_id":"p1","status":"paid"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp map[string]bool
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["applied"] {
			t.Fatal("replay reported applied")
		}
		if len(bot.Sent) != 0 {
			t.Fatal("replay notified the user")
		}
	})
}
