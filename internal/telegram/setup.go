// Package telegram adapts the bot API: connection setup, handler
// registration, outbound messaging, and paper rendering.
package telegram

import (
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"

	"github.com/binbla/ArxivPusherBot/internal/bot/handlers"
)

// NewTelegramBot connects a bot instance for the given token.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created", "token_prefix", token[:8]+"...")
	return b, nil
}

// wrap applies a handler's middleware chain, first entry outermost.
func wrap(handler bot.HandlerFunc, mw []bot.Middleware) bot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// RegisterHandlers attaches every entry of the handler registry to the
// bot, wrapping each in its own middleware.
func RegisterHandlers(b *bot.Bot, logger *slog.Logger, registry map[string]handlers.RegisteredHandler) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "handler_registry")

	for name, entry := range registry {
		if entry.Handler == nil {
			log.Warn("Skipping nil handler", "name", name, "pattern", entry.Pattern)
			continue
		}

		b.RegisterHandler(entry.HandlerType, entry.Pattern, entry.MatchType, wrap(entry.Handler, entry.Middleware))
		log.Debug("Registered handler", "name", name, "pattern", entry.Pattern, "middleware_count", len(entry.Middleware))
	}

	log.Info("Telegram handlers registered", "count", len(registry))
	return nil
}
