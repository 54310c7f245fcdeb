package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type ContesterConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type GenerationConfig struct {
	// PollIntervalSecs is how often WaitForGeneration re-reads the record.
	PollIntervalSecs int `yaml:"poll_interval_secs"`
	// StaleAfterSecs is the lazy-expiry threshold for IN_PROGRESS records.
	StaleAfterSecs int `yaml:"stale_after_secs"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	BotToken      string           `yaml:"bot_token"`
	Contester     ContesterConfig  `yaml:"contester"`
	OpenAI        OpenAIConfig     `yaml:"openai"`
	RateLimitSecs int              `yaml:"rate_limit_secs"`
	Generation    GenerationConfig `yaml:"generation"`
	Postgres      PostgresConfig   `yaml:"postgres"`
	Redis         RedisConfig      `yaml:"redis"`
	HTTP          HTTPConfig       `yaml:"http"`
	LogMode       string           `yaml:"log_mode"`
}

func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.RateLimitSecs) * time.Second
}

func (c *GenerationConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

func (c *GenerationConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSecs) * time.Second
}

func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Load reads a YAML config file and applies environment overrides so
// secrets never have to live in the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is not configured")
	}
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("openai api key is not configured")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Contester: ContesterConfig{
			BaseURL: "https://contest.nlogn.info/api",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4",
		},
		RateLimitSecs: 60,
		Generation: GenerationConfig{
			PollIntervalSecs: 3,
			StaleAfterSecs:   300,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "gptbot",
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		LogMode: "development",
	}
}

func applyEnv(cfg *Config) {
	cfg.BotToken = getEnv("BOT_TOKEN", cfg.BotToken)
	cfg.Contester.Token = getEnv("CONTESTER_TOKEN", cfg.Contester.Token)
	cfg.Contester.BaseURL = getEnv("CONTESTER_BASE_URL", cfg.Contester.BaseURL)
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.Model = getEnv("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.Postgres.Host = getEnv("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = getEnvAsInt("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = getEnv("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = getEnv("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Database = getEnv("POSTGRES_NAME", cfg.Postgres.Database)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.LogMode = getEnv("LOG_MODE", cfg.LogMode)
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return i
}
