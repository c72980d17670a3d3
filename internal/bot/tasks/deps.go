// Package tasks implements the bot's scheduled tasks: the periodic
// fetch sweep, the channel digest, and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/binbla/ArxivPusherBot/internal/config"
	"github.com/binbla/ArxivPusherBot/internal/database"
	"github.com/binbla/ArxivPusherBot/internal/fetcher"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Fetcher *fetcher.Fetcher
	Config  *config.Config
}
