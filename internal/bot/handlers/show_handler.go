package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/binbla/ArxivPusherBot/internal/session"
)

// NewShowHandler returns a handler for the /show command, which lists
// the user's saved search queries and the configured fetch interval.
func NewShowHandler(deps HandlerDeps) bot.HandlerFunc {
	return showHandler{deps}.Handle
}

type showHandler struct {
	deps HandlerDeps
}

func (h showHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "show")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Show handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	log.InfoContext(ctx, "Handling /show command", "chat_id", chatID, "user_id", userID)

	user, err := h.deps.Store.GetUserConfig(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load user config", "user_id", userID, "error", err)
		if _, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: h.deps.Config.Messages.GeneralError}); sendErr != nil {
			log.ErrorContext(ctx, "Failed to send error message", "error", sendErr, "chat_id", chatID)
		}
		return
	}

	interval := fmt.Sprintf("Fetch interval: %d hours.", h.deps.Config.Arxiv.FetchIntervalHours)

	var text string
	if user == nil || len(user.SearchQueries) == 0 {
		text = interval + "\n\n" + h.deps.Config.Messages.NoQueries
	} else {
		text = interval + "\n\n" + session.FormatQueryList(h.deps.Config.Messages.QueriesHeader, user.SearchQueries)
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send query list", "error", err, "chat_id", chatID)
	}
}
