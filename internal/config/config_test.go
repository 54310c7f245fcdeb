package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
bot_token: tg-token
contester:
  token: contester-token
openai:
  api_key: sk-test
  model: gpt-4
rate_limit_secs: 30
generation:
  poll_interval_secs: 2
  stale_after_secs: 120
postgres:
  host: db.local
  database: bot
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotToken != "tg-token" {
		t.Fatalf("unexpected bot token: %q", cfg.BotToken)
	}
	if cfg.RateLimitSecs != 30 {
		t.Fatalf("unexpected rate limit: %d", cfg.RateLimitSecs)
	}
	if got := cfg.Generation.StaleAfter().Seconds(); got != 120 {
		t.Fatalf("unexpected stale_after: %v", got)
	}
	if cfg.Postgres.Host != "db.local" {
		t.Fatalf("unexpected postgres host: %q", cfg.Postgres.Host)
	}
	// Untouched fields keep their defaults.
	if cfg.OpenAI.BaseURL != "https://api.openai.com/v1" {
		t.Fatalf("unexpected openai base url: %q", cfg.OpenAI.BaseURL)
	}
	if cfg.Generation.PollIntervalSecs != 2 {
		t.Fatalf("unexpected poll interval: %d", cfg.Generation.PollIntervalSecs)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("POSTGRES_PORT", "6543")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-env" {
		t.Fatalf("env override not applied: %q", cfg.OpenAI.APIKey)
	}
	if cfg.Postgres.Port != 6543 {
		t.Fatalf("env override not applied: %d", cfg.Postgres.Port)
	}
}

func TestLoadMissingBotToken(t *testing.T) {
	if _, err := Load(writeConfig(t, "openai:\n  api_key: sk\n")); err == nil {
		t.Fatal("expected error for missing bot token")
	}
}
