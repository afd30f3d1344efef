//go:build !integration

package config

import (
	"strings"
	"testing"
)

const minimalYAML = `
bot:
  token: "123:abc"
database:
  url: "postgres://localhost/app"
redis:
  url: "localhost:6379"
`

func TestParseConfig_ProviderURLDefaults(t *testing.T) {
	cfg, err := parseConfig([]byte(minimalYAML), false)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}

	urls := map[string]string{
		"openai":    cfg.AI.OpenAIURL,
		"anthropic": cfg.AI.AnthropicURL,
		"together":  cfg.AI.TogetherURL,
		"xai":       cfg.AI.XAIURL,
	}
	for provider, url := range urls {
		if url == "" {
			t.Fatalf("%s base url not defaulted", provider)
		}
		if !strings.HasPrefix(url, "https://") {
			t.Fatalf("%s base url = %q", provider, url)
		}
	}
	if cfg.AI.OpenAIURL != "https://api.openai.com/v1" {
		t.Fatalf("openai url = %q", cfg.AI.OpenAIURL)
	}
}

func TestParseConfig_BotToken(t *testing.T) {
	withoutToken := []byte(strings.Replace(minimalYAML, `token: "123:abc"`, `token: ""`, 1))

	t.Run("required in production", func(t *testing.T) {
		if _, err := parseConfig(withoutToken, false); err == nil {
			t.Fatal("expected an error for a missing bot token")
		}
	})

	t.Run("optional in dev mode", func(t *testing.T) {
		cfg, err := parseConfig(withoutToken, true)
		if err != nil {
			t.Fatalf("parseConfig: %v", err)
		}
		if !cfg.Runtime.Dev {
			t.Fatal("dev flag not carried into runtime config")
		}
	})
}
