package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/spi-u/gpt-bot/internal/config"
	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/types"
)

// Chat history is trimmed to roughly this many tokens before a request;
// counted with a coarse bytes/4 approximation, which is why the budget is
// conservative relative to the model's real context window.
const (
	tokenBudget      = 12000
	truncateFallback = 20000
)

type Client interface {
	Chat(ctx context.Context, messages []types.ChatMessage) (string, error)
}

type client struct {
	httpClient *http.Client
	log        *logger.Logger
	apiKey     string
	baseURL    string
	model      string
}

func NewClient(cfg config.OpenAIConfig, baseLog *logger.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	return &client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        baseLog.With("client", "OpenAIClient"),
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *client) Chat(ctx context.Context, messages []types.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("chat called with no messages")
	}

	payload := chatRequest{
		Model:    c.model,
		Messages: trimToBudget(messages),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("Starting chat completion", "model", c.model, "messages", len(payload.Messages))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned no completion")
	}
	return parsed.Choices[0].Message.Content, nil
}

func role(m types.ChatMessage) string {
	if m.IsUser {
		return "user"
	}
	return "assistant"
}

// approxTokens estimates token count; ~4 bytes per token is close enough
// for a trimming heuristic.
func approxTokens(text string) int {
	return len(text) / 4
}

// trimToBudget keeps the newest turns that fit the token budget, dropping
// history from the front. If even the newest turn alone is too large, it
// falls back to hard truncation so the request always carries at least one
// message.
func trimToBudget(messages []types.ChatMessage) []chatMessage {
	kept := make([]chatMessage, 0, len(messages))
	tokens := 0
	for _, m := range messages {
		kept = append(kept, chatMessage{Role: role(m), Content: m.Text})
		tokens += approxTokens(m.Text)
		for tokens > tokenBudget && len(kept) > 0 {
			tokens -= approxTokens(kept[0].Content)
			kept = kept[1:]
		}
	}
	if len(kept) > 0 {
		return kept
	}

	first := messages[0]
	last := messages[len(messages)-1]
	if len(messages) == 1 {
		return []chatMessage{
			{Role: role(first), Content: truncate(first.Text)},
		}
	}
	return []chatMessage{
		{Role: role(first), Content: truncate(first.Text)},
		{Role: role(last), Content: truncate(last.Text)},
	}
}

func truncate(text string) string {
	if len(text) <= truncateFallback {
		return text
	}
	// Back off to a rune boundary so the cut never ships invalid UTF-8.
	cut := truncateFallback
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
