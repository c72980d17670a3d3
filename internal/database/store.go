package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations. Methods accept
// context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetUserConfig retrieves a user's configuration. Returns nil, nil if not found.
	GetUserConfig(ctx context.Context, userID int64) (*UserConfig, error)

	// GetAllUsers retrieves every registered user.
	GetAllUsers(ctx context.Context) ([]*UserConfig, error)

	// GetUsersByPlatform retrieves users registered on one platform.
	GetUsersByPlatform(ctx context.Context, platform Platform) ([]*UserConfig, error)

	// UpsertUser inserts or updates a user's configuration (platform,
	// search queries, schedule). The query list is written whole.
	UpsertUser(ctx context.Context, user *UserConfig) error

	// DeleteUser removes a user. Returns false if no such user existed.
	DeleteUser(ctx context.Context, userID int64) (bool, error)

	// PaperExists reports whether a paper is already stored.
	PaperExists(ctx context.Context, arxivID string) (bool, error)

	// InsertPaper stores a new paper. Returns false (and no error) if a
	// paper with the same id already exists; the stored row is never
	// overwritten.
	InsertPaper(ctx context.Context, paper *Paper) (bool, error)

	// GetPaper retrieves a stored paper. Returns nil, nil if not found.
	GetPaper(ctx context.Context, arxivID string) (*Paper, error)

	// IsSent reports whether a paper was already delivered to a user.
	IsSent(ctx context.Context, arxivID string, userID int64) (bool, error)

	// MarkSent records a successful delivery. Returns false if the
	// (paper, user) pair was already recorded.
	MarkSent(ctx context.Context, arxivID string, userID int64) (bool, error)

	// RunSQLMaintenance compacts and re-analyzes the database.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUserConfig retrieves a user's configuration by id.
func (s *sqlxStore) GetUserConfig(ctx context.Context, userID int64) (*UserConfig, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var user UserConfig
	query := `SELECT user_id, platform, search_queries, schedule_time, created_at, updated_at
	          FROM users WHERE user_id = ?`

	err := s.db.GetContext(ctx, &user, query, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No user config found", "user_id", userID)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user config", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get user config for user %d: %w", userID, err)
	}

	return &user, nil
}

// GetAllUsers retrieves every registered user.
func (s *sqlxStore) GetAllUsers(ctx context.Context) ([]*UserConfig, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var users []*UserConfig
	query := `SELECT user_id, platform, search_queries, schedule_time, created_at, updated_at
	          FROM users ORDER BY user_id`

	if err := s.db.SelectContext(ctx, &users, query); err != nil {
		s.logger.ErrorContext(ctx, "Error getting all users", "error", err)
		return nil, fmt.Errorf("failed to get all users: %w", err)
	}

	s.logger.DebugContext(ctx, "Fetched all users", "count", len(users))
	return users, nil
}

// GetUsersByPlatform retrieves users registered on one platform.
func (s *sqlxStore) GetUsersByPlatform(ctx context.Context, platform Platform) ([]*UserConfig, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var users []*UserConfig
	query := `SELECT user_id, platform, search_queries, schedule_time, created_at, updated_at
	          FROM users WHERE platform = ? ORDER BY user_id`

	if err := s.db.SelectContext(ctx, &users, query, platform); err != nil {
		s.logger.ErrorContext(ctx, "Error getting users by platform", "platform", platform, "error", err)
		return nil, fmt.Errorf("failed to get users for platform %s: %w", platform, err)
	}

	return users, nil
}

// UpsertUser inserts or updates a user's configuration.
func (s *sqlxStore) UpsertUser(ctx context.Context, user *UserConfig) error {
	if user == nil {
		return fmt.Errorf("cannot save nil user config")
	}
	if user.UserID == 0 {
		return fmt.Errorf("user config must have a non-zero user_id")
	}
	if user.Platform == "" {
		user.Platform = PlatformTelegram
	}

	now := time.Now().UTC()
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	query := `
		INSERT INTO users (user_id, platform, search_queries, schedule_time, created_at, updated_at)
		VALUES (:user_id, :platform, :search_queries, :schedule_time, :created_at, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			platform       = excluded.platform,
			search_queries = excluded.search_queries,
			schedule_time  = excluded.schedule_time,
			updated_at     = excluded.updated_at
	`

	if _, err := s.db.NamedExecContext(ctx, query, user); err != nil {
		s.logger.ErrorContext(ctx, "Error saving user config", "user_id", user.UserID, "error", err)
		return fmt.Errorf("failed to save user config for user %d: %w", user.UserID, err)
	}

	s.logger.DebugContext(ctx, "User config saved", "user_id", user.UserID, "queries", len(user.SearchQueries))
	return nil
}

// DeleteUser removes a user. Returns false if no such user existed.
func (s *sqlxStore) DeleteUser(ctx context.Context, userID int64) (bool, error) {
	if userID == 0 {
		return false, fmt.Errorf("user_id cannot be zero")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting user", "user_id", userID, "error", err)
		return false, fmt.Errorf("failed to delete user %d: %w", userID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count after user delete", "user_id", userID, "error", err)
		return false, nil
	}

	s.logger.InfoContext(ctx, "Deleted user", "user_id", userID, "existed", affected > 0)
	return affected > 0, nil
}

// PaperExists reports whether a paper is already stored.
func (s *sqlxStore) PaperExists(ctx context.Context, arxivID string) (bool, error) {
	if arxivID == "" {
		return false, fmt.Errorf("arxiv_id cannot be empty")
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	var one int
	err := s.db.GetContext(ctx, &one, `SELECT 1 FROM papers WHERE arxiv_id = ? LIMIT 1`, arxivID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error checking paper existence", "arxiv_id", arxivID, "error", err)
		return false, fmt.Errorf("failed to check paper %s: %w", arxivID, err)
	}
	return true, nil
}

// InsertPaper stores a new paper, never overwriting an existing row.
func (s *sqlxStore) InsertPaper(ctx context.Context, paper *Paper) (bool, error) {
	if paper == nil {
		return false, fmt.Errorf("cannot save nil paper")
	}
	if paper.ArxivID == "" {
		return false, fmt.Errorf("paper must have a non-empty arxiv_id")
	}

	if paper.AddedAt.IsZero() {
		paper.AddedAt = time.Now().UTC()
	}

	query := `
		INSERT OR IGNORE INTO papers (
			arxiv_id, title, authors, summary, published, updated, categories,
			link, pdf_link, comment, tags, description, translation, added_at
		) VALUES (
			:arxiv_id, :title, :authors, :summary, :published, :updated, :categories,
			:link, :pdf_link, :comment, :tags, :description, :translation, :added_at
		)
	`

	result, err := s.db.NamedExecContext(ctx, query, paper)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting paper", "arxiv_id", paper.ArxivID, "error", err)
		return false, fmt.Errorf("failed to insert paper %s: %w", paper.ArxivID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count after paper insert", "arxiv_id", paper.ArxivID, "error", err)
		return false, nil
	}

	if affected > 0 {
		s.logger.DebugContext(ctx, "Inserted new paper", "arxiv_id", paper.ArxivID)
	}
	return affected > 0, nil
}

// GetPaper retrieves a stored paper by its external id.
func (s *sqlxStore) GetPaper(ctx context.Context, arxivID string) (*Paper, error) {
	if arxivID == "" {
		return nil, fmt.Errorf("arxiv_id cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var paper Paper
	query := `SELECT arxiv_id, title, authors, summary, published, updated, categories,
	                 link, pdf_link, comment, tags, description, translation, added_at
	          FROM papers WHERE arxiv_id = ?`

	err := s.db.GetContext(ctx, &paper, query, arxivID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting paper", "arxiv_id", arxivID, "error", err)
		return nil, fmt.Errorf("failed to get paper %s: %w", arxivID, err)
	}

	return &paper, nil
}

// IsSent reports whether a paper was already delivered to a user.
func (s *sqlxStore) IsSent(ctx context.Context, arxivID string, userID int64) (bool, error) {
	if arxivID == "" {
		return false, fmt.Errorf("arxiv_id cannot be empty")
	}
	if userID == 0 {
		return false, fmt.Errorf("user_id cannot be zero")
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	var one int
	err := s.db.GetContext(ctx, &one,
		`SELECT 1 FROM deliveries WHERE arxiv_id = ? AND user_id = ? LIMIT 1`, arxivID, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error checking delivery record", "arxiv_id", arxivID, "user_id", userID, "error", err)
		return false, fmt.Errorf("failed to check delivery for paper %s, user %d: %w", arxivID, userID, err)
	}
	return true, nil
}

// MarkSent records a successful delivery for one (paper, user) pair.
func (s *sqlxStore) MarkSent(ctx context.Context, arxivID string, userID int64) (bool, error) {
	if arxivID == "" {
		return false, fmt.Errorf("arxiv_id cannot be empty")
	}
	if userID == 0 {
		return false, fmt.Errorf("user_id cannot be zero")
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (arxiv_id, user_id, sent_at) VALUES (?, ?, ?)`,
		arxivID, userID, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording delivery", "arxiv_id", arxivID, "user_id", userID, "error", err)
		return false, fmt.Errorf("failed to record delivery for paper %s, user %d: %w", arxivID, userID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count after delivery insert",
			"arxiv_id", arxivID, "user_id", userID, "error", err)
		return false, nil
	}

	s.logger.DebugContext(ctx, "Delivery recorded", "arxiv_id", arxivID, "user_id", userID, "new", affected > 0)
	return affected > 0, nil
}

// RunSQLMaintenance compacts and re-analyzes the database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	for _, stmt := range []string{`PRAGMA optimize`, `VACUUM`} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.ErrorContext(ctx, "Maintenance statement failed", "statement", stmt, "error", err)
			return fmt.Errorf("maintenance statement %q failed: %w", stmt, err)
		}
	}

	s.logger.InfoContext(ctx, "Database maintenance complete")
	return nil
}
