package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/binbla/ArxivPusherBot/internal/session"
)

// Messenger adapts the Telegram bot API to the outbound surface the
// core packages consume.
type Messenger struct {
	bot    *bot.Bot
	logger *slog.Logger
}

// NewMessenger wraps a connected bot instance.
func NewMessenger(b *bot.Bot, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Messenger{
		bot:    b,
		logger: logger.With("component", "messenger"),
	}
}

// SendText sends rich (MarkdownV2) text when given, falling back to the
// plain body when the rich variant is rejected by the API.
func (m *Messenger) SendText(ctx context.Context, chatID int64, plain, rich string) (session.MessageRef, error) {
	if rich != "" {
		msg, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      rich,
			ParseMode: models.ParseModeMarkdown,
		})
		if err == nil {
			return session.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
		}
		m.logger.WarnContext(ctx, "Rich message rejected, falling back to plain text", "chat_id", chatID, "error", err)
	}

	msg, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   plain,
	})
	if err != nil {
		return session.MessageRef{}, fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return session.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

// SendMenu sends text with one row of inline choice buttons. Button
// taps arrive as callback queries carrying the option tag.
func (m *Messenger) SendMenu(ctx context.Context, chatID int64, text string, options []session.MenuOption) (session.MessageRef, error) {
	row := make([]models.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		row = append(row, models.InlineKeyboardButton{
			Text:         opt.Label,
			CallbackData: opt.Tag,
		})
	}

	msg, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}},
	})
	if err != nil {
		return session.MessageRef{}, fmt.Errorf("failed to send menu to chat %d: %w", chatID, err)
	}
	return session.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

// DeleteMessage revokes one previously sent message.
func (m *Messenger) DeleteMessage(ctx context.Context, ref session.MessageRef) error {
	ok, err := m.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message %d in chat %d: %w", ref.MessageID, ref.ChatID, err)
	}
	if !ok {
		return fmt.Errorf("telegram refused to delete message %d in chat %d", ref.MessageID, ref.ChatID)
	}
	return nil
}
