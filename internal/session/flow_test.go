package session_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/binbla/ArxivPusherBot/internal/config"
	"github.com/binbla/ArxivPusherBot/internal/database"
	"github.com/binbla/ArxivPusherBot/internal/session"
)

type sentMessage struct {
	chatID int64
	text   string
}

// fakeMessenger records outbound traffic and assigns sequential ids.
type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMessage
	deleted []session.MessageRef
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, plain, _ string) (session.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: plain})
	return session.MessageRef{ChatID: chatID, MessageID: m.nextID}, nil
}

func (m *fakeMessenger) SendMenu(ctx context.Context, chatID int64, text string, _ []session.MenuOption) (session.MessageRef, error) {
	return m.SendText(ctx, chatID, text, "")
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, ref session.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *fakeMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].text
}

func (m *fakeMessenger) deletedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted)
}

type fixture struct {
	store     database.Store
	messenger *fakeMessenger
	manager   *session.Manager
	flow      *session.SetKeywordsFlow
	messages  *config.MessagesConfig
}

func newFixture(t *testing.T, sessionCfg *config.SessionConfig) *fixture {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := database.NewStore(db, logger)
	messenger := &fakeMessenger{}

	messages := &config.MessagesConfig{
		NoQueries:      "no queries",
		QueriesHeader:  "your queries:",
		PromptQuery:    "enter query",
		PromptMax:      "query %s, enter limit (1-%d)",
		PromptDelete:   "enter index",
		EmptyQuery:     "query empty",
		InvalidNumber:  "not a number",
		OutOfRange:     "must be 1-%d",
		DuplicateQuery: "duplicate query",
		InvalidIndex:   "bad index",
		QueryAdded:     "added %s limit %d total %d",
		QueryDeleted:   "deleted %s remain %d",
		Cancelled:      "cancelled",
		SessionExpired: "expired",
		NoFlowHint:     "no dialog",
	}

	if sessionCfg == nil {
		sessionCfg = &config.SessionConfig{Timeout: time.Minute, CheckInterval: time.Second}
	}

	defaultFlow := session.NewDefaultFlow(messenger, messages.NoFlowHint)
	manager := session.NewManager(messenger, defaultFlow, sessionCfg, messages.SessionExpired, logger)
	flow := session.NewSetKeywordsFlow(store, messenger, messages, 50, logger)

	return &fixture{
		store:     store,
		messenger: messenger,
		manager:   manager,
		flow:      flow,
		messages:  messages,
	}
}

func TestAddQueryFlow(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	if err := fx.manager.StartFlow(ctx, 1, 1, fx.flow); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	if fx.messenger.lastText() != "enter query" {
		t.Errorf("expected query prompt for user without queries, got %q", fx.messenger.lastText())
	}

	if err := fx.manager.HandleMessage(ctx, 1, 1, "cat:cs.LG"); err != nil {
		t.Fatalf("HandleMessage query: %v", err)
	}
	if !strings.Contains(fx.messenger.lastText(), "enter limit") {
		t.Errorf("expected limit prompt, got %q", fx.messenger.lastText())
	}

	if err := fx.manager.HandleMessage(ctx, 1, 1, "10"); err != nil {
		t.Fatalf("HandleMessage limit: %v", err)
	}
	if !strings.Contains(fx.messenger.lastText(), "added cat:cs.LG limit 10") {
		t.Errorf("expected add confirmation, got %q", fx.messenger.lastText())
	}

	if fx.manager.Active(1) {
		t.Error("expected session to be terminated after completion")
	}
	if fx.messenger.deletedCount() == 0 {
		t.Error("expected tracked prompts to be revoked on completion")
	}

	user, err := fx.store.GetUserConfig(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserConfig: %v", err)
	}
	if user == nil || len(user.SearchQueries) != 1 {
		t.Fatalf("expected 1 persisted query, got %+v", user)
	}
	if user.SearchQueries[0].Query != "cat:cs.LG" || user.SearchQueries[0].MaxResults != 10 {
		t.Errorf("wrong persisted query: %+v", user.SearchQueries[0])
	}
}

func TestLimitValidationBoundaries(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	type step struct {
		input      string
		wantReply  string
		terminates bool
	}

	// The flow was built with ceiling 50.
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "non-numeric reprompts",
			steps: []step{
				{input: "ten", wantReply: "not a number"},
				{input: "10", wantReply: "added", terminates: true},
			},
		},
		{
			name: "zero rejected",
			steps: []step{
				{input: "0", wantReply: "must be 1-50"},
				{input: "1", wantReply: "added", terminates: true},
			},
		},
		{
			name: "ceiling accepted",
			steps: []step{
				{input: "50", wantReply: "added", terminates: true},
			},
		},
		{
			name: "ceiling plus one rejected",
			steps: []step{
				{input: "51", wantReply: "must be 1-50"},
				{input: "50", wantReply: "added", terminates: true},
			},
		},
	}

	userID := int64(100)
	for _, tc := range tests {
		userID++
		t.Run(tc.name, func(t *testing.T) {
			if err := fx.manager.StartFlow(ctx, userID, userID, fx.flow); err != nil {
				t.Fatalf("StartFlow: %v", err)
			}
			if err := fx.manager.HandleMessage(ctx, userID, userID, "some query"); err != nil {
				t.Fatalf("HandleMessage query: %v", err)
			}

			for _, st := range tc.steps {
				if err := fx.manager.HandleMessage(ctx, userID, userID, st.input); err != nil {
					t.Fatalf("HandleMessage(%q): %v", st.input, err)
				}
				if !strings.Contains(fx.messenger.lastText(), st.wantReply) {
					t.Errorf("after input %q: expected reply containing %q, got %q",
						st.input, st.wantReply, fx.messenger.lastText())
				}
				if fx.manager.Active(userID) == st.terminates {
					t.Errorf("after input %q: active = %v, want %v",
						st.input, fx.manager.Active(userID), !st.terminates)
				}
			}
		})
	}
}

func TestEmptyQueryReprompts(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	if err := fx.manager.StartFlow(ctx, 2, 2, fx.flow); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	if err := fx.manager.HandleMessage(ctx, 2, 2, "   "); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if fx.messenger.lastText() != "query empty" {
		t.Errorf("expected empty-query reprompt, got %q", fx.messenger.lastText())
	}
	if !fx.manager.Active(2) {
		t.Error("session must survive an empty query")
	}
}

func TestDuplicateQueryReturnsToQueryStep(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	seed := &database.UserConfig{
		UserID:        3,
		SearchQueries: database.QueryList{{Query: "cat:cs.CV", MaxResults: 5}},
	}
	if err := fx.store.UpsertUser(ctx, seed); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	if err := fx.manager.StartFlow(ctx, 3, 3, fx.flow); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	// User already has queries, so the menu comes first.
	if err := fx.manager.HandleMenuChoice(ctx, 3, 3, session.ChoiceAdd); err != nil {
		t.Fatalf("HandleMenuChoice add: %v", err)
	}

	if err := fx.manager.HandleMessage(ctx, 3, 3, "cat:cs.CV"); err != nil {
		t.Fatalf("HandleMessage duplicate query: %v", err)
	}
	if err := fx.manager.HandleMessage(ctx, 3, 3, "5"); err != nil {
		t.Fatalf("HandleMessage limit: %v", err)
	}
	if fx.messenger.lastText() != "duplicate query" {
		t.Errorf("expected duplicate rejection, got %q", fx.messenger.lastText())
	}
	if !fx.manager.Active(3) {
		t.Fatal("session must return to the query step on duplicate")
	}

	// Whitespace/case variants are distinct queries.
	if err := fx.manager.HandleMessage(ctx, 3, 3, "CAT:cs.CV"); err != nil {
		t.Fatalf("HandleMessage variant query: %v", err)
	}
	if err := fx.manager.HandleMessage(ctx, 3, 3, "5"); err != nil {
		t.Fatalf("HandleMessage variant limit: %v", err)
	}
	if !strings.Contains(fx.messenger.lastText(), "added CAT:cs.CV") {
		t.Errorf("case variant should be accepted, got %q", fx.messenger.lastText())
	}

	user, err := fx.store.GetUserConfig(ctx, 3)
	if err != nil {
		t.Fatalf("GetUserConfig: %v", err)
	}
	if len(user.SearchQueries) != 2 {
		t.Errorf("expected 2 queries after exact-match dedup, got %+v", user.SearchQueries)
	}
}

func TestDeleteQueryFlow(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	seed := &database.UserConfig{
		UserID: 4,
		SearchQueries: database.QueryList{
			{Query: "first", MaxResults: 5},
			{Query: "second", MaxResults: 5},
		},
	}
	if err := fx.store.UpsertUser(ctx, seed); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	if err := fx.manager.StartFlow(ctx, 4, 4, fx.flow); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	if !strings.Contains(fx.messenger.lastText(), "your queries:") {
		t.Errorf("expected menu with query list, got %q", fx.messenger.lastText())
	}

	if err := fx.manager.HandleMenuChoice(ctx, 4, 4, session.ChoiceDelete); err != nil {
		t.Fatalf("HandleMenuChoice delete: %v", err)
	}

	// Out-of-range index reprompts, state unchanged.
	if err := fx.manager.HandleMessage(ctx, 4, 4, "3"); err != nil {
		t.Fatalf("HandleMessage bad index: %v", err)
	}
	if fx.messenger.lastText() != "bad index" {
		t.Errorf("expected index reprompt, got %q", fx.messenger.lastText())
	}
	if !fx.manager.Active(4) {
		t.Fatal("session must survive an invalid index")
	}

	if err := fx.manager.HandleMessage(ctx, 4, 4, "1"); err != nil {
		t.Fatalf("HandleMessage index: %v", err)
	}
	if !strings.Contains(fx.messenger.lastText(), "deleted first remain 1") {
		t.Errorf("expected delete confirmation, got %q", fx.messenger.lastText())
	}

	user, err := fx.store.GetUserConfig(ctx, 4)
	if err != nil {
		t.Fatalf("GetUserConfig: %v", err)
	}
	if len(user.SearchQueries) != 1 || user.SearchQueries[0].Query != "second" {
		t.Errorf("wrong query removed: %+v", user.SearchQueries)
	}
}

func TestMenuCancel(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	seed := &database.UserConfig{
		UserID:        5,
		SearchQueries: database.QueryList{{Query: "q", MaxResults: 1}},
	}
	if err := fx.store.UpsertUser(ctx, seed); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	if err := fx.manager.StartFlow(ctx, 5, 5, fx.flow); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	if err := fx.manager.HandleMenuChoice(ctx, 5, 5, session.ChoiceCancel); err != nil {
		t.Fatalf("HandleMenuChoice cancel: %v", err)
	}

	if fx.manager.Active(5) {
		t.Error("expected session gone after menu cancel")
	}
	if fx.messenger.deletedCount() == 0 {
		t.Error("expected menu prompt revoked on cancel")
	}
}

func TestExplicitCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	if err := fx.manager.StartFlow(ctx, 6, 6, fx.flow); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}

	if !fx.manager.Cancel(ctx, 6, fx.messages.Cancelled) {
		t.Error("expected first cancel to report an active session")
	}
	if fx.messenger.lastText() != "cancelled" {
		t.Errorf("expected cancel notice, got %q", fx.messenger.lastText())
	}
	if fx.manager.Cancel(ctx, 6, fx.messages.Cancelled) {
		t.Error("expected second cancel to be a no-op")
	}
}

func TestFreeTextWithoutSession(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	if err := fx.manager.HandleMessage(ctx, 7, 7, "hello there"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if fx.messenger.lastText() != "no dialog" {
		t.Errorf("expected hint reply, got %q", fx.messenger.lastText())
	}
	if fx.manager.Active(7) {
		t.Error("default flow must not register a session")
	}

	user, err := fx.store.GetUserConfig(ctx, 7)
	if err != nil {
		t.Fatalf("GetUserConfig: %v", err)
	}
	if user != nil {
		t.Error("default flow must not mutate persistent state")
	}
}

func TestWatchdogExpiresIdleSession(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, &config.SessionConfig{
		Timeout:       80 * time.Millisecond,
		CheckInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	if err := fx.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fx.manager.Stop()

	if err := fx.manager.StartFlow(ctx, 8, 8, fx.flow); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	if err := fx.manager.HandleMessage(ctx, 8, 8, "some query"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fx.manager.Active(8) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if fx.manager.Active(8) {
		t.Fatal("expected watchdog to expire the idle session")
	}
	if fx.messenger.lastText() != "expired" {
		t.Errorf("expected timeout notice, got %q", fx.messenger.lastText())
	}
	if fx.messenger.deletedCount() == 0 {
		t.Error("expected prompts revoked on timeout")
	}
}

func TestWatchdogStartStop(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)
	ctx := context.Background()

	if err := fx.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := fx.manager.Start(ctx); err == nil {
		t.Error("expected error starting an already running watchdog")
	}

	fx.manager.Stop()
	fx.manager.Stop() // safe when stopped

	if err := fx.manager.Start(ctx); err != nil {
		t.Errorf("expected restart after stop to succeed: %v", err)
	}
	fx.manager.Stop()
}
