package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewMenuChoiceHandler returns the callback-query handler. Inline menu
// taps carry a choice tag in their data; the session manager routes the
// tag into the user's active flow.
func NewMenuChoiceHandler(deps HandlerDeps) bot.HandlerFunc {
	return menuChoiceHandler{deps}.Handle
}

type menuChoiceHandler struct {
	deps HandlerDeps
}

func (h menuChoiceHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "menu_choice")

	if update.CallbackQuery == nil {
		return
	}
	cb := update.CallbackQuery

	// Acknowledge the tap so the client stops its spinner.
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID}); err != nil {
		log.WarnContext(ctx, "Failed to answer callback query", "error", err)
	}

	userID := cb.From.ID
	chatID := userID
	if cb.Message.Message != nil {
		chatID = cb.Message.Message.Chat.ID
	}

	log.DebugContext(ctx, "Handling menu choice", "user_id", userID, "choice", cb.Data)

	if err := h.deps.Sessions.HandleMenuChoice(ctx, userID, chatID, cb.Data); err != nil {
		log.ErrorContext(ctx, "Menu choice handling failed", "user_id", userID, "choice", cb.Data, "error", err)
	}
}

// NewDefaultHandler returns the catch-all message handler: free text
// feeds the user's active flow, or the default hint when none exists.
func NewDefaultHandler(deps HandlerDeps) bot.HandlerFunc {
	return defaultHandler{deps}.Handle
}

type defaultHandler struct {
	deps HandlerDeps
}

func (h defaultHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "default")

	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}
	// Commands have their own handlers.
	if strings.HasPrefix(update.Message.Text, "/") {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if err := h.deps.Sessions.HandleMessage(ctx, userID, chatID, update.Message.Text); err != nil {
		log.ErrorContext(ctx, "Message handling failed", "user_id", userID, "error", err)
	}
}
