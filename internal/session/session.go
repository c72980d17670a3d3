// Package session implements interactive dialog state: a registry of
// per-user sessions owned by the Manager, a closed set of flows, and a
// watchdog that expires idle sessions.
package session

import (
	"context"
	"sync"
	"time"
)

// State identifies the step an interactive flow is waiting on.
type State int

const (
	// StateNone means no flow step is pending.
	StateNone State = iota
	// StateMenu waits for a menu choice (add/delete/cancel).
	StateMenu
	// StateAwaitingQuery waits for a free-text search expression.
	StateAwaitingQuery
	// StateAwaitingMaxResults waits for a bounded integer.
	StateAwaitingMaxResults
	// StateAwaitingDeleteIndex waits for a 1-based list index.
	StateAwaitingDeleteIndex
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateMenu:
		return "menu"
	case StateAwaitingQuery:
		return "awaiting_query"
	case StateAwaitingMaxResults:
		return "awaiting_max_results"
	case StateAwaitingDeleteIndex:
		return "awaiting_delete_index"
	default:
		return "unknown"
	}
}

// Menu choice tags offered by the keyword flow.
const (
	ChoiceAdd    = "add"
	ChoiceDelete = "delete"
	ChoiceCancel = "cancel"
)

// MessageRef identifies one sent message so it can be revoked later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// MenuOption is one selectable entry of a menu prompt.
type MenuOption struct {
	Label string
	Tag   string
}

// Messenger is the outbound surface flows and the watchdog use. The
// transport layer provides the implementation.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, plain, rich string) (MessageRef, error)
	SendMenu(ctx context.Context, chatID int64, text string, options []MenuOption) (MessageRef, error)
	DeleteMessage(ctx context.Context, ref MessageRef) error
}

// Flow is one kind of interactive dialog. Implementations form a
// closed set; dispatch happens over the session's attached flow value.
type Flow interface {
	// Start begins the dialog and issues the first prompt.
	Start(ctx context.Context, s *Session) error
	// OnMessage consumes one free-text input. done reports that the
	// flow finished and the session should be terminated.
	OnMessage(ctx context.Context, s *Session, text string) (done bool, err error)
	// OnMenuChoice consumes one menu selection.
	OnMenuChoice(ctx context.Context, s *Session, choice string) (done bool, err error)
}

// Session holds the dialog state of one user. All fields behind the
// mutex; only the Manager and the session's own flow touch them.
type Session struct {
	UserID int64
	ChatID int64

	mu           sync.Mutex
	state        State
	flow         Flow
	pendingQuery string
	shownCount   int
	prompts      []MessageRef
	lastActive   time.Time
}

func newSession(userID, chatID int64, flow Flow) *Session {
	return &Session{
		UserID:     userID,
		ChatID:     chatID,
		flow:       flow,
		state:      StateNone,
		lastActive: time.Now(),
	}
}

// State returns the current dialog state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// stageQuery stores the pending search expression between the query
// and max-results steps.
func (s *Session) stageQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingQuery = query
}

func (s *Session) stagedQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingQuery
}

func (s *Session) clearScratch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingQuery = ""
	s.shownCount = 0
}

// setShownCount records how many list entries the delete prompt showed,
// bounding the index the user may reply with.
func (s *Session) setShownCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shownCount = n
}

func (s *Session) shown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shownCount
}

// trackPrompt records a prompt message for revocation on termination.
func (s *Session) trackPrompt(ref MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, ref)
}

// takePrompts returns the tracked prompts and clears the list.
func (s *Session) takePrompts() []MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	prompts := s.prompts
	s.prompts = nil
	return prompts
}

// touch resets the idle clock.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// reset clears all dialog state. Called from the termination routine
// after the session left the registry.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateNone
	s.pendingQuery = ""
	s.shownCount = 0
	s.prompts = nil
}
