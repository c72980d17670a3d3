package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewSetKeywordsHandler returns a handler for the /set_keywords
// command, starting the interactive keyword flow for the user.
func NewSetKeywordsHandler(deps HandlerDeps) bot.HandlerFunc {
	return setKeywordsHandler{deps}.Handle
}

type setKeywordsHandler struct {
	deps HandlerDeps
}

func (h setKeywordsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "set_keywords")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Set keywords handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	log.InfoContext(ctx, "Handling /set_keywords command", "chat_id", chatID, "user_id", userID)

	if err := h.deps.Sessions.StartFlow(ctx, userID, chatID, h.deps.KeywordsFlow); err != nil {
		log.ErrorContext(ctx, "Failed to start keyword flow", "user_id", userID, "error", err)
		if _, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: h.deps.Config.Messages.GeneralError}); sendErr != nil {
			log.ErrorContext(ctx, "Failed to send error message", "error", sendErr, "chat_id", chatID)
		}
	}
}

// NewCancelHandler returns a handler for the /cancel command, which
// aborts the user's active dialog.
func NewCancelHandler(deps HandlerDeps) bot.HandlerFunc {
	return cancelHandler{deps}.Handle
}

type cancelHandler struct {
	deps HandlerDeps
}

func (h cancelHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "cancel")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Cancel handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	log.InfoContext(ctx, "Handling /cancel command", "chat_id", chatID, "user_id", userID)

	if !h.deps.Sessions.Cancel(ctx, userID, h.deps.Config.Messages.Cancelled) {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: h.deps.Config.Messages.NoFlowHint}); err != nil {
			log.ErrorContext(ctx, "Failed to send no-flow hint", "error", err, "chat_id", chatID)
		}
	}
}
