// Package bot is the Telegram adapter. It long-polls for updates, resolves
// the sending user, routes commands and callback queries to the service
// layer and renders replies with inline keyboards.
package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/repos"
	"github.com/spi-u/gpt-bot/internal/types"
)

// telegramAPI is the slice of tgbotapi.BotAPI the package uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Ctx carries the per-update state handlers work with. User is nil only
// while the authorization flow runs.
type Ctx struct {
	ChatID          int64
	TelegramID      int64
	IsGroupChat     bool
	GroupAuthorized bool
	RawUserName     string
	Message         string
	CallbackID      string
	User            *types.User
}

type Bot struct {
	api       *tgbotapi.BotAPI
	service   *Service
	users     repos.UserRepo
	groups    repos.GroupRepo
	log       *logger.Logger
	startedAt time.Time
}

func New(api *tgbotapi.BotAPI, service *Service, users repos.UserRepo, groups repos.GroupRepo, baseLog *logger.Logger) *Bot {
	return &Bot{
		api:       api,
		service:   service,
		users:     users,
		groups:    groups,
		log:       baseLog.With("component", "Bot"),
		startedAt: time.Now(),
	}
}

// Run long-polls until ctx is cancelled. Each update is handled in its own
// goroutine so a slow generation wait never blocks the poll loop.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	b.log.Info("bot started", "username", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", "panic", r)
		}
	}()

	c, ok := b.buildCtx(ctx, update)
	if !ok {
		return
	}
	if c.User == nil {
		b.service.ProcessAuthorization(ctx, c)
		return
	}
	b.dispatch(ctx, c, update)
}

// buildCtx resolves chat and user state for an update. Returns ok=false for
// updates the bot ignores entirely (no sender, stale messages).
func (b *Bot) buildCtx(ctx context.Context, update tgbotapi.Update) (*Ctx, bool) {
	c := &Ctx{}

	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil {
			return nil, false
		}
		// Replaying messages queued while the bot was down would fire
		// generations for long-gone conversations.
		if time.Unix(int64(msg.Date), 0).Before(b.startedAt) {
			return nil, false
		}
		c.TelegramID = msg.From.ID
		c.ChatID = msg.Chat.ID
		c.IsGroupChat = msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()
		c.Message = msg.Text
		c.RawUserName = displayName(msg.From)
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil {
			return nil, false
		}
		c.TelegramID = cb.From.ID
		c.CallbackID = cb.ID
		c.RawUserName = displayName(cb.From)
		if cb.Message != nil {
			c.ChatID = cb.Message.Chat.ID
			c.IsGroupChat = cb.Message.Chat.IsGroup() || cb.Message.Chat.IsSuperGroup()
		}
	default:
		return nil, false
	}

	if c.IsGroupChat {
		group, err := b.groups.GetByChatID(ctx, c.ChatID)
		if err != nil {
			b.log.Error("failed to look up group", "chat_id", c.ChatID, "error", err)
			return nil, false
		}
		c.GroupAuthorized = group != nil
	}

	user, err := b.users.GetByTelegramID(ctx, c.TelegramID)
	if err != nil {
		b.log.Error("failed to look up user", "telegram_id", c.TelegramID, "error", err)
		return nil, false
	}
	c.User = user
	return c, true
}

func displayName(from *tgbotapi.User) string {
	var sb strings.Builder
	sb.WriteString(from.FirstName)
	if from.LastName != "" {
		sb.WriteString(" ")
		sb.WriteString(from.LastName)
	}
	if from.UserName != "" {
		sb.WriteString(" (@")
		sb.WriteString(from.UserName)
		sb.WriteString(")")
	}
	return sb.String()
}
