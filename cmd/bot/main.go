package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/spi-u/gpt-bot/internal/bot"
	"github.com/spi-u/gpt-bot/internal/clients/contester"
	"github.com/spi-u/gpt-bot/internal/clients/openai"
	"github.com/spi-u/gpt-bot/internal/config"
	"github.com/spi-u/gpt-bot/internal/db"
	"github.com/spi-u/gpt-bot/internal/generator"
	"github.com/spi-u/gpt-bot/internal/logger"
	"github.com/spi-u/gpt-bot/internal/observability"
	"github.com/spi-u/gpt-bot/internal/ratelimit"
	"github.com/spi-u/gpt-bot/internal/repos"
	"github.com/spi-u/gpt-bot/internal/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if shutdown := observability.Init(context.Background(), log, observability.Config{
		ServiceName: "gpt-bot",
		Environment: cfg.LogMode,
	}); shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	pg, err := db.NewPostgresService(cfg.Postgres, log)
	if err != nil {
		return err
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return err
	}

	users := repos.NewUserRepo(pg.DB(), log)
	groups := repos.NewGroupRepo(pg.DB(), log)
	templates := repos.NewTemplateRepo(pg.DB(), log)
	generations := repos.NewGenerationRepo(pg.DB(), cfg.Generation.StaleAfter(), log)
	actions := repos.NewActionRepo(pg.DB(), log)

	// Cooldown tracking degrades to the db timestamp when redis is not
	// configured or unreachable.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	}

	chatClient, err := openai.NewClient(cfg.OpenAI, log)
	if err != nil {
		return err
	}
	contesterClient := contester.NewClient(cfg.Contester, log)

	gen := generator.New(templates, generations, chatClient, cfg.Generation.PollInterval(), log)
	limiter := ratelimit.New(rdb, users, cfg.RateLimit(), log)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}

	service := bot.NewService(api, gen, users, groups, generations, actions, templates, contesterClient, limiter, log)
	tgBot := bot.New(api, service, users, groups, log)
	httpServer := server.New(cfg.HTTP.Addr, templates, generations, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return tgBot.Run(ctx) })
	group.Go(func() error { return httpServer.Run(ctx) })

	return group.Wait()
}
