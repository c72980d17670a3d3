package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewFetchNowHandler returns a handler for the /fetch_now command: the
// user's saved queries run immediately through the same pipeline the
// periodic sweep uses.
func NewFetchNowHandler(deps HandlerDeps) bot.HandlerFunc {
	return fetchNowHandler{deps}.Handle
}

type fetchNowHandler struct {
	deps HandlerDeps
}

func (h fetchNowHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "fetch_now")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Fetch now handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	log.InfoContext(ctx, "Handling /fetch_now command", "chat_id", chatID, "user_id", userID)

	user, err := h.deps.Store.GetUserConfig(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load user config", "user_id", userID, "error", err)
		h.send(ctx, b, chatID, h.deps.Config.Messages.GeneralError, log)
		return
	}
	if user == nil || len(user.SearchQueries) == 0 {
		h.send(ctx, b, chatID, h.deps.Config.Messages.NoQueries, log)
		return
	}

	queries := make([]string, 0, len(user.SearchQueries))
	for _, q := range user.SearchQueries {
		queries = append(queries, q.Query)
	}
	h.send(ctx, b, chatID, fmt.Sprintf(h.deps.Config.Messages.FetchStarted, strings.Join(queries, ", ")), log)

	delivered, err := h.deps.Fetcher.FetchUser(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "On-demand fetch failed", "user_id", userID, "error", err)
		h.send(ctx, b, chatID, h.deps.Config.Messages.GeneralError, log)
		return
	}

	log.InfoContext(ctx, "On-demand fetch complete", "user_id", userID, "delivered", delivered)
	h.send(ctx, b, chatID, h.deps.Config.Messages.FetchDone, log)
}

func (h fetchNowHandler) send(ctx context.Context, b *bot.Bot, chatID int64, text string, log *slog.Logger) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

// NewFetchAllHandler returns the admin-only /fetch_all command, which
// triggers a full sweep over every registered user.
func NewFetchAllHandler(deps HandlerDeps) bot.HandlerFunc {
	return fetchAllHandler{deps}.Handle
}

type fetchAllHandler struct {
	deps HandlerDeps
}

func (h fetchAllHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "fetch_all")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Fetch all handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /fetch_all command", "chat_id", chatID)

	if err := h.deps.Fetcher.Sweep(ctx); err != nil {
		log.ErrorContext(ctx, "Manual sweep failed", "error", err)
		if _, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: h.deps.Config.Messages.GeneralError}); sendErr != nil {
			log.ErrorContext(ctx, "Failed to send error message", "error", sendErr, "chat_id", chatID)
		}
		return
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: h.deps.Config.Messages.FetchDone}); err != nil {
		log.ErrorContext(ctx, "Failed to send completion message", "error", err, "chat_id", chatID)
	}
}
