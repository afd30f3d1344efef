// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Mode     string  `yaml:"mode"` // polling | webhook (future)
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
	Channel  string  `yaml:"channel"` // @handle checked for channel access policy
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // conversation state TTL
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIURL       string `yaml:"openai_url"`
	AnthropicKey    string `yaml:"anthropic_key"`
	AnthropicURL    string `yaml:"anthropic_url"`
	TogetherKey     string `yaml:"together_key"`
	TogetherURL     string `yaml:"together_url"`
	XAIKey          string `yaml:"xai_key"`
	XAIURL          string `yaml:"xai_url"`
	GeminiKey       string `yaml:"gemini_key"`
	DefaultModel    string `yaml:"default_model"`
	ImageModel      string `yaml:"image_model"`
	TTSModel        string `yaml:"tts_model"`
	TTSVoice        string `yaml:"tts_voice"`
	SystemPrompt    string `yaml:"system_prompt"`    // persona used when no agent is active
	PromptSuffix    string `yaml:"prompt_suffix"`    // appended to every system prompt, e.g. a length constraint
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
}

type TokenPack struct {
	Tokens int64 `yaml:"tokens"`
	Amount int64 `yaml:"amount"` // minor currency units (cents)
}

type BillingConfig struct {
	TextCost      int64       `yaml:"text_cost"`
	ImageCost     int64       `yaml:"image_cost"`
	AudioCost     int64       `yaml:"audio_cost"`
	DailyTokens   int64       `yaml:"daily_tokens"`   // free-tariff daily balance reset
	ReferralBonus int64       `yaml:"referral_bonus"` // credited to the inviter
	WelcomeTokens int64       `yaml:"welcome_tokens"` // starting balance on first /start
	FreeModel     string      `yaml:"free_model"`     // text chat on this model is free
	FreeTariff    string      `yaml:"free_tariff"`    // restrict the free model to one tariff; empty means all
	Packs         []TokenPack `yaml:"packs"`
}

type AccessConfig struct {
	Policy            string `yaml:"policy"` // open | referral | channel | sticky
	ReferralThreshold int    `yaml:"referral_threshold"`
}

type PaymentConfig struct {
	ProviderKey   string `yaml:"provider_key"`
	CallbackURL   string `yaml:"callback_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	Currency      string `yaml:"currency"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Billing  BillingConfig  `yaml:"billing"`
	Access   AccessConfig   `yaml:"access"`
	Payment  PaymentConfig  `yaml:"payment"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(b, dev)
}

func parseConfig(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ImageModel == "" {
		cfg.AI.ImageModel = "dall-e-3"
	}
	if cfg.AI.TTSModel == "" {
		cfg.AI.TTSModel = "tts-1"
	}
	if cfg.AI.TTSVoice == "" {
		cfg.AI.TTSVoice = "alloy"
	}
	if cfg.AI.OpenAIURL == "" {
		cfg.AI.OpenAIURL = "https://api.openai.com/v1"
	}
	if cfg.AI.AnthropicURL == "" {
		cfg.AI.AnthropicURL = "https://api.anthropic.com/v1"
	}
	if cfg.AI.TogetherURL == "" {
		cfg.AI.TogetherURL = "https://api.together.xyz/v1"
	}
	if cfg.AI.XAIURL == "" {
		cfg.AI.XAIURL = "https://api.x.ai/v1"
	}
	if cfg.Billing.TextCost <= 0 {
		cfg.Billing.TextCost = 1
	}
	if cfg.Billing.ImageCost <= 0 {
		cfg.Billing.ImageCost = 5
	}
	if cfg.Billing.AudioCost <= 0 {
		cfg.Billing.AudioCost = 3
	}
	if cfg.Billing.DailyTokens <= 0 {
		cfg.Billing.DailyTokens = 30
	}
	if cfg.Billing.ReferralBonus <= 0 {
		cfg.Billing.ReferralBonus = 10
	}
	if cfg.Billing.WelcomeTokens < 0 {
		cfg.Billing.WelcomeTokens = 0
	}
	if len(cfg.Billing.Packs) == 0 {
		cfg.Billing.Packs = []TokenPack{
			{Tokens: 100, Amount: 199},
			{Tokens: 500, Amount: 799},
			{Tokens: 1500, Amount: 1999},
		}
	}
	if cfg.Access.Policy == "" {
		cfg.Access.Policy = "referral"
	}
	if cfg.Access.ReferralThreshold <= 0 {
		cfg.Access.ReferralThreshold = 3
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "usd"
	}

	// Minimal validation
	if cfg.Bot.Token == "" && !dev {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	switch cfg.Access.Policy {
	case "open", "referral", "channel", "sticky":
	default:
		return nil, fmt.Errorf("access.policy %q is not one of open|referral|channel|sticky", cfg.Access.Policy)
	}
	if cfg.Access.Policy == "channel" && cfg.Bot.Channel == "" {
		return nil, errors.New("bot.channel is required for channel access policy")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
