// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/binbla/ArxivPusherBot/internal/arxiv"
	"github.com/binbla/ArxivPusherBot/internal/bot"
	"github.com/binbla/ArxivPusherBot/internal/bot/handlers"
	"github.com/binbla/ArxivPusherBot/internal/bot/tasks"
	"github.com/binbla/ArxivPusherBot/internal/config"
	"github.com/binbla/ArxivPusherBot/internal/database"
	"github.com/binbla/ArxivPusherBot/internal/delivery"
	"github.com/binbla/ArxivPusherBot/internal/fetcher"
	"github.com/binbla/ArxivPusherBot/internal/llm"
	"github.com/binbla/ArxivPusherBot/internal/logger"
	"github.com/binbla/ArxivPusherBot/internal/session"
	"github.com/binbla/ArxivPusherBot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger,
// db, clients, pipeline, bot, scheduler), handles graceful shutdown, and
// returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	generator, err := llm.NewClient(ctx, &cfg.LLM, log)
	if err != nil {
		log.Error("Failed to initialize LLM client", "error", err)
		return 1
	}
	enricher := llm.NewEnricher(generator, cfg.LLM.Concurrency, cfg.LLM.MaxTags, log)

	arxivClient, err := arxiv.NewClient(&cfg.Arxiv, store, log)
	if err != nil {
		log.Error("Failed to initialize arXiv client", "error", err)
		return 1
	}

	// The default text handler is bound after the session manager
	// exists; updates only flow once the listener starts.
	var defaultHandler tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if defaultHandler != nil {
				defaultHandler(ctx, b, update)
			}
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	messenger := telegram.NewMessenger(tg, log)
	keywordsFlow := session.NewSetKeywordsFlow(store, messenger, &cfg.Messages, cfg.Arxiv.MaxResults, log)
	defaultFlow := session.NewDefaultFlow(messenger, cfg.Messages.NoFlowHint)
	sessions := session.NewManager(messenger, defaultFlow, &cfg.Session, cfg.Messages.SessionExpired, log)

	engine := delivery.NewEngine(store, log)
	sendPaper := func(ctx context.Context, chatID int64, paper *database.Paper) error {
		// MarkdownV2 card first; the messenger falls back to the plain
		// rendering if the API rejects it.
		_, err := messenger.SendText(ctx, chatID, telegram.FormatPaperPlain(paper), telegram.FormatPaper(paper))
		return err
	}
	paperFetcher := fetcher.NewFetcher(
		store,
		arxivClient,
		enricher,
		engine,
		sendPaper,
		cfg.Telegram.ChannelChatID,
		cfg.Arxiv.DefaultCategories,
		log,
	)

	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        store,
		Sessions:     sessions,
		Fetcher:      paperFetcher,
		Messenger:    messenger,
		KeywordsFlow: keywordsFlow,
	}
	defaultHandler = handlers.NewDefaultHandler(hDeps)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Fetcher: paperFetcher,
		Config:  cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, db, store, sessions, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
