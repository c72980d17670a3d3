package handlers

import (
	"log/slog"

	"github.com/binbla/ArxivPusherBot/internal/config"
	"github.com/binbla/ArxivPusherBot/internal/database"
	"github.com/binbla/ArxivPusherBot/internal/fetcher"
	"github.com/binbla/ArxivPusherBot/internal/session"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	Sessions     *session.Manager
	Fetcher      *fetcher.Fetcher
	Messenger    session.Messenger
	KeywordsFlow session.Flow
}
