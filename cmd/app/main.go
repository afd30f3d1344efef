package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telegram-llm-bot/internal/application"
	"telegram-llm-bot/internal/config"
	"telegram-llm-bot/internal/domain/ports/adapter"
	aiAdapters "telegram-llm-bot/internal/infra/adapters/ai"
	payAdapters "telegram-llm-bot/internal/infra/adapters/payment"
	tele "telegram-llm-bot/internal/infra/adapters/telegram"
	pg "telegram-llm-bot/internal/infra/db/postgres"
	"telegram-llm-bot/internal/infra/i18n"
	"telegram-llm-bot/internal/infra/logging"
	"telegram-llm-bot/internal/infra/metrics"
	red "telegram-llm-bot/internal/infra/redis"
	"telegram-llm-bot/internal/infra/sched"
	"telegram-llm-bot/internal/infra/web"
	"telegram-llm-bot/internal/infra/worker"
	"telegram-llm-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool := pg.MustConnectPostgres(cfg.Database.URL)
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	stateRepo := red.NewStateRepo(redisClient, cfg.Redis.TTL)

	// ---- i18n ----
	translator, err := i18n.NewTranslator(i18n.LocalesFS)
	if err != nil {
		log.Fatalf("i18n: %v", err)
	}

	// ---- Repositories ----
	userRepo := pg.NewPostgresUserRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- AI providers ----
	ai := buildAIAdapter(ctx, &cfg.AI, cfg.Runtime.Dev, logger)
	if cfg.AI.ConcurrentLimit > 0 {
		ai = aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit)
	}

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Payment.ProviderKey != "" {
		gateway, err = payAdapters.NewStripeGateway(cfg.Payment.ProviderKey, cfg.Payment.CallbackURL)
		if err != nil {
			log.Fatalf("payment gateway: %v", err)
		}
	} else {
		logger.Warn().Msg("no payment provider configured, using noop gateway")
		gateway = payAdapters.NewNoopPaymentGateway()
	}

	// ---- Telegram adapter (facade is attached below) ----
	var botPort adapter.TelegramBotAdapter
	var realBot *tele.RealTelegramBotAdapter
	if cfg.Bot.Token == "" && cfg.Runtime.Dev {
		logger.Warn().Msg("no bot token configured, using noop telegram adapter")
		botPort = tele.NewNoopBotAdapter()
	} else {
		realBot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, translator, rateLimiter, logger)
		if err != nil {
			log.Fatalf("telegram: %v", err)
		}
		botPort = realBot
	}

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, txManager, cfg.AI.DefaultModel, cfg.Billing.WelcomeTokens, logger)
	agentUC := usecase.NewAgentUseCase(userRepo, logger)
	accessUC := usecase.NewAccessUseCase(userRepo, botPort, cfg.Access, cfg.Bot.Channel, cfg.Bot.Username, cfg.Billing.ReferralBonus, logger)
	billingUC := usecase.NewBillingUseCase(userRepo, gateway, cfg.Billing, cfg.Payment.Currency, logger)

	var providerFor func(model string) string
	if multi, ok := ai.(*aiAdapters.MultiAIAdapter); ok {
		providerFor = multi.Provider
	}
	chatUC := usecase.NewChatUseCase(userRepo, ai, billingUC, locker, providerFor, cfg.AI.ImageModel, cfg.AI.TTSModel, cfg.AI.SystemPrompt, cfg.AI.PromptSuffix, logger)

	workerPool := worker.NewPool(cfg.Bot.Workers)
	workerPool.Start(ctx)
	defer workerPool.Stop()
	broadcastUC := usecase.NewBroadcastUseCase(userRepo, botPort, workerPool, logger)

	// ---- Facade ----
	facade := application.NewBotFacade(userUC, agentUC, accessUC, billingUC, chatUC, broadcastUC, stateRepo)
	if realBot != nil {
		realBot.AttachFacade(facade)

		if strings.ToLower(cfg.Bot.Mode) != "polling" && cfg.Bot.Mode != "" {
			logger.Warn().Str("mode", cfg.Bot.Mode).Msg("bot mode not implemented, falling back to polling")
		}
		go func() {
			if err := realBot.StartPolling(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Daily reward worker ----
	rewardWorker := sched.NewDailyRewardWorker(15*time.Minute, userRepo, billingUC, botPort, translator, logger)
	go func() { _ = rewardWorker.Run(ctx) }()

	// ---- Admin API / webhook server ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.Username, cfg.Admin.Password, !cfg.Runtime.Dev, 30*time.Minute)
	srv := web.NewServer(userUC, billingUC, botPort, translator, auth, cfg.Payment.WebhookSecret, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Admin.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	if realBot != nil {
		realBot.StopPolling()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

// buildAIAdapter wires every configured provider behind one routing adapter.
// At least one provider key must be set, except in dev mode where a noop
// adapter answers instead.
func buildAIAdapter(ctx context.Context, cfg *config.AIConfig, dev bool, logger *zerolog.Logger) adapter.AIServiceAdapter {
	byProvider := map[string]adapter.AIServiceAdapter{}
	modelToProvider := map[string]string{}
	defaultProvider := ""

	register := func(provider string, models []string, a adapter.AIServiceAdapter) {
		byProvider[provider] = a
		for _, m := range models {
			modelToProvider[m] = provider
		}
		if defaultProvider == "" {
			defaultProvider = provider
		}
		logger.Info().Str("provider", provider).Int("models", len(models)).Msg("AI provider enabled")
	}

	if cfg.OpenAIKey != "" {
		models := []string{"gpt-4o", "gpt-4o-mini", "o1-mini"}
		a, err := aiAdapters.NewOpenAICompatAdapter("openai", cfg.OpenAIKey, cfg.OpenAIURL, models,
			aiAdapters.WithImageModel(cfg.ImageModel),
			aiAdapters.WithTTS(cfg.TTSModel, cfg.TTSVoice),
		)
		if err != nil {
			log.Fatalf("openai adapter: %v", err)
		}
		register("openai", models, a)
	}
	if cfg.AnthropicKey != "" {
		models := []string{"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest"}
		a, err := aiAdapters.NewAnthropicAdapter(cfg.AnthropicKey, cfg.AnthropicURL, models)
		if err != nil {
			log.Fatalf("anthropic adapter: %v", err)
		}
		register("anthropic", models, a)
	}
	if cfg.TogetherKey != "" {
		models := []string{
			"meta-llama/Llama-3.3-70B-Instruct-Turbo",
			"mistralai/Mixtral-8x7B-Instruct-v0.1",
			"Qwen/Qwen2.5-72B-Instruct-Turbo",
			"deepseek-ai/DeepSeek-V3",
		}
		a, err := aiAdapters.NewOpenAICompatAdapter("together", cfg.TogetherKey, cfg.TogetherURL, models)
		if err != nil {
			log.Fatalf("together adapter: %v", err)
		}
		register("together", models, a)
	}
	if cfg.XAIKey != "" {
		models := []string{"grok-2", "grok-2-mini"}
		a, err := aiAdapters.NewOpenAICompatAdapter("xai", cfg.XAIKey, cfg.XAIURL, models,
			aiAdapters.WithImageModel("grok-2-image"),
		)
		if err != nil {
			log.Fatalf("xai adapter: %v", err)
		}
		register("xai", models, a)
	}
	if cfg.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, "gemini-2.0-flash", 2048)
		if err != nil {
			log.Fatalf("gemini adapter: %v", err)
		}
		register("gemini", []string{"gemini-2.0-flash", "gemini-1.5-pro"}, a)
	}

	if len(byProvider) == 0 {
		if !dev {
			log.Fatalf("no AI provider configured: set at least one key under ai in the config file")
		}
		logger.Warn().Msg("no AI provider configured, using noop adapter")
		return aiAdapters.NewNoopAIAdapter()
	}
	if p, ok := modelToProvider[cfg.DefaultModel]; ok {
		defaultProvider = p
	}
	return aiAdapters.NewMultiAIAdapter(defaultProvider, byProvider, modelToProvider)
}
