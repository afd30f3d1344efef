package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/domain/ports/adapter"
	"telegram-llm-bot/internal/infra/i18n"
	"telegram-llm-bot/internal/usecase"
)

// Server exposes the admin API, health and metrics endpoints and the payment
// gateway webhook.
type Server struct {
	userUC        usecase.UserUseCase
	billingUC     usecase.BillingUseCase
	bot           adapter.TelegramBotAdapter
	translator    *i18n.Translator
	auth          *AuthManager
	webhookSecret string
	log           *zerolog.Logger
}

func NewServer(
	userUC usecase.UserUseCase,
	billingUC usecase.BillingUseCase,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	auth *AuthManager,
	webhookSecret string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		userUC:        userUC,
		billingUC:     billingUC,
		bot:           bot,
		translator:    translator,
		auth:          auth,
		webhookSecret: webhookSecret,
		log:           logger,
	}
}

// Router builds the full route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhook/payment", s.paymentWebhookHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.loginHandler())
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/stats", s.statsHandler())
			r.Get("/users", s.usersListHandler())
			r.Get("/users/{id}", s.userGetHandler())
		})
	})
	return r
}

// authMiddleware requires a valid admin JWT, from header or cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
