package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/binbla/ArxivPusherBot/internal/config"
	"github.com/binbla/ArxivPusherBot/internal/database"
)

// FormatQueryList renders a user's queries as a numbered list for
// prompts and the /show command.
func FormatQueryList(header string, queries database.QueryList) string {
	var sb strings.Builder
	sb.WriteString(header)
	for i, q := range queries {
		sb.WriteString(fmt.Sprintf("\n%d. %s (limit %d)", i+1, q.Query, q.MaxResults))
	}
	return sb.String()
}

// SetKeywordsFlow is the add/delete dialog for a user's search queries.
type SetKeywordsFlow struct {
	store     database.Store
	messenger Messenger
	messages  *config.MessagesConfig
	maxLimit  int
	logger    *slog.Logger
}

// NewSetKeywordsFlow creates the keyword management flow. maxLimit is
// the inclusive ceiling for a query's result limit.
func NewSetKeywordsFlow(store database.Store, messenger Messenger, messages *config.MessagesConfig, maxLimit int, logger *slog.Logger) *SetKeywordsFlow {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SetKeywordsFlow{
		store:     store,
		messenger: messenger,
		messages:  messages,
		maxLimit:  maxLimit,
		logger:    logger.With("component", "set_keywords_flow"),
	}
}

// Start shows the add/delete menu when the user already has queries,
// or goes straight to the query prompt when the list is empty.
func (f *SetKeywordsFlow) Start(ctx context.Context, s *Session) error {
	user, err := f.store.GetUserConfig(ctx, s.UserID)
	if err != nil {
		return err
	}

	if user == nil || len(user.SearchQueries) == 0 {
		return f.promptQuery(ctx, s, f.messages.PromptQuery)
	}

	return f.sendMenu(ctx, s, user.SearchQueries)
}

func (f *SetKeywordsFlow) sendMenu(ctx context.Context, s *Session, queries database.QueryList) error {
	text := FormatQueryList(f.messages.QueriesHeader, queries)
	ref, err := f.messenger.SendMenu(ctx, s.ChatID, text, []MenuOption{
		{Label: "Add", Tag: ChoiceAdd},
		{Label: "Delete", Tag: ChoiceDelete},
		{Label: "Cancel", Tag: ChoiceCancel},
	})
	if err != nil {
		return err
	}
	s.trackPrompt(ref)
	s.setState(StateMenu)
	return nil
}

func (f *SetKeywordsFlow) promptQuery(ctx context.Context, s *Session, text string) error {
	ref, err := f.messenger.SendText(ctx, s.ChatID, text, "")
	if err != nil {
		return err
	}
	s.trackPrompt(ref)
	s.setState(StateAwaitingQuery)
	return nil
}

// OnMenuChoice handles the three menu exits. Only meaningful in the
// menu state; a stray choice re-prompts.
func (f *SetKeywordsFlow) OnMenuChoice(ctx context.Context, s *Session, choice string) (bool, error) {
	if s.State() != StateMenu {
		return false, nil
	}

	switch choice {
	case ChoiceAdd:
		return false, f.promptQuery(ctx, s, f.messages.PromptQuery)

	case ChoiceDelete:
		user, err := f.store.GetUserConfig(ctx, s.UserID)
		if err != nil {
			return false, err
		}
		if user == nil || len(user.SearchQueries) == 0 {
			_, err := f.messenger.SendText(ctx, s.ChatID, f.messages.NoQueries, "")
			return true, err
		}

		text := FormatQueryList(f.messages.QueriesHeader, user.SearchQueries) + "\n" + f.messages.PromptDelete
		ref, err := f.messenger.SendText(ctx, s.ChatID, text, "")
		if err != nil {
			return false, err
		}
		s.trackPrompt(ref)
		s.setShownCount(len(user.SearchQueries))
		s.setState(StateAwaitingDeleteIndex)
		return false, nil

	case ChoiceCancel:
		if _, err := f.messenger.SendText(ctx, s.ChatID, f.messages.Cancelled, ""); err != nil {
			f.logger.WarnContext(ctx, "Failed to send cancel confirmation", "user_id", s.UserID, "error", err)
		}
		return true, nil

	default:
		f.logger.WarnContext(ctx, "Unknown menu choice", "user_id", s.UserID, "choice", choice)
		return false, nil
	}
}

// OnMessage advances the dialog on free-text input. Invalid input
// re-prompts and leaves the state unchanged.
func (f *SetKeywordsFlow) OnMessage(ctx context.Context, s *Session, text string) (bool, error) {
	switch s.State() {
	case StateAwaitingQuery:
		return f.onQueryInput(ctx, s, text)
	case StateAwaitingMaxResults:
		return f.onLimitInput(ctx, s, text)
	case StateAwaitingDeleteIndex:
		return f.onIndexInput(ctx, s, text)
	case StateMenu:
		// Free text while the menu is up: show the menu again.
		user, err := f.store.GetUserConfig(ctx, s.UserID)
		if err != nil {
			return false, err
		}
		if user == nil {
			return true, nil
		}
		return false, f.sendMenu(ctx, s, user.SearchQueries)
	default:
		return false, fmt.Errorf("set keywords flow received message in state %s", s.State())
	}
}

func (f *SetKeywordsFlow) onQueryInput(ctx context.Context, s *Session, text string) (bool, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return false, f.reprompt(ctx, s, f.messages.EmptyQuery)
	}

	s.stageQuery(query)
	ref, err := f.messenger.SendText(ctx, s.ChatID, fmt.Sprintf(f.messages.PromptMax, query, f.maxLimit), "")
	if err != nil {
		return false, err
	}
	s.trackPrompt(ref)
	s.setState(StateAwaitingMaxResults)
	return false, nil
}

func (f *SetKeywordsFlow) onLimitInput(ctx context.Context, s *Session, text string) (bool, error) {
	limit, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return false, f.reprompt(ctx, s, f.messages.InvalidNumber)
	}
	if limit < 1 || limit > f.maxLimit {
		return false, f.reprompt(ctx, s, fmt.Sprintf(f.messages.OutOfRange, f.maxLimit))
	}

	query := s.stagedQuery()
	if query == "" {
		return true, fmt.Errorf("no staged query for user %d in state %s", s.UserID, s.State())
	}

	user, err := f.store.GetUserConfig(ctx, s.UserID)
	if err != nil {
		return true, err
	}
	if user == nil {
		user = &database.UserConfig{UserID: s.UserID, Platform: database.PlatformTelegram}
	}

	// Uniqueness is exact string match on the raw expression.
	for _, existing := range user.SearchQueries {
		if existing.Query == query {
			s.clearScratch()
			if err := f.promptQuery(ctx, s, f.messages.DuplicateQuery); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	user.SearchQueries = append(user.SearchQueries, database.SearchQuery{Query: query, MaxResults: limit})
	if err := f.store.UpsertUser(ctx, user); err != nil {
		return true, err
	}

	confirmation := fmt.Sprintf(f.messages.QueryAdded, query, limit, len(user.SearchQueries))
	if _, err := f.messenger.SendText(ctx, s.ChatID, confirmation, ""); err != nil {
		f.logger.WarnContext(ctx, "Failed to send add confirmation", "user_id", s.UserID, "error", err)
	}

	f.logger.InfoContext(ctx, "Search query added", "user_id", s.UserID, "query", query, "limit", limit)
	return true, nil
}

func (f *SetKeywordsFlow) onIndexInput(ctx context.Context, s *Session, text string) (bool, error) {
	index, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || index < 1 || index > s.shown() {
		return false, f.reprompt(ctx, s, f.messages.InvalidIndex)
	}

	user, err := f.store.GetUserConfig(ctx, s.UserID)
	if err != nil {
		return true, err
	}
	if user == nil || index > len(user.SearchQueries) {
		return false, f.reprompt(ctx, s, f.messages.InvalidIndex)
	}

	removed := user.SearchQueries[index-1]
	user.SearchQueries = append(user.SearchQueries[:index-1], user.SearchQueries[index:]...)
	if err := f.store.UpsertUser(ctx, user); err != nil {
		return true, err
	}

	confirmation := fmt.Sprintf(f.messages.QueryDeleted, removed.Query, len(user.SearchQueries))
	if _, err := f.messenger.SendText(ctx, s.ChatID, confirmation, ""); err != nil {
		f.logger.WarnContext(ctx, "Failed to send delete confirmation", "user_id", s.UserID, "error", err)
	}

	f.logger.InfoContext(ctx, "Search query deleted", "user_id", s.UserID, "query", removed.Query)
	return true, nil
}

// reprompt sends a validation message without changing state.
func (f *SetKeywordsFlow) reprompt(ctx context.Context, s *Session, text string) error {
	ref, err := f.messenger.SendText(ctx, s.ChatID, text, "")
	if err != nil {
		return err
	}
	s.trackPrompt(ref)
	return nil
}

// DefaultFlow answers free text from users with no active dialog. It
// only replies with a hint; it never registers a session or mutates
// state.
type DefaultFlow struct {
	messenger Messenger
	hint      string
}

// NewDefaultFlow creates the no-dialog fallback flow.
func NewDefaultFlow(messenger Messenger, hint string) *DefaultFlow {
	return &DefaultFlow{messenger: messenger, hint: hint}
}

// Start is a no-op: the default flow has no dialog to begin.
func (f *DefaultFlow) Start(context.Context, *Session) error { return nil }

// OnMessage replies with the hint.
func (f *DefaultFlow) OnMessage(ctx context.Context, s *Session, _ string) (bool, error) {
	_, err := f.messenger.SendText(ctx, s.ChatID, f.hint, "")
	return true, err
}

// OnMenuChoice ignores stray menu callbacks.
func (f *DefaultFlow) OnMenuChoice(context.Context, *Session, string) (bool, error) {
	return true, nil
}
