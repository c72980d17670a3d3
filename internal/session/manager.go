package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/binbla/ArxivPusherBot/internal/config"
)

// Manager owns the session registry. Every mutation of the registry
// and every termination path (cancel, completion, timeout) goes through
// it.
type Manager struct {
	messenger     Messenger
	defaultFlow   Flow
	timeout       time.Duration
	checkInterval time.Duration
	expiredNotice string
	logger        *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a session manager. defaultFlow handles free text
// from users with no active session.
func NewManager(messenger Messenger, defaultFlow Flow, cfg *config.SessionConfig, expiredNotice string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		messenger:     messenger,
		defaultFlow:   defaultFlow,
		timeout:       cfg.Timeout,
		checkInterval: cfg.CheckInterval,
		expiredNotice: expiredNotice,
		logger:        logger.With("component", "session_manager"),
		sessions:      make(map[int64]*Session),
	}
}

// Start launches the expiry watchdog. The handle is retained; Stop
// cancels the loop and waits for it to exit.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return fmt.Errorf("session watchdog already running")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.watch(watchCtx)

	m.logger.Info("Session watchdog started", "timeout", m.timeout, "check_interval", m.checkInterval)
	return nil
}

// Stop terminates the watchdog and awaits loop exit. Safe to call when
// not running.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}

	m.cancel()
	<-m.done
	m.running = false
	m.logger.Info("Session watchdog stopped")
}

// watch wakes every check interval and expires idle sessions. Each
// expiry runs in its own goroutine so one slow revocation cannot delay
// the others.
func (m *Manager) watch(ctx context.Context) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(m.done)
	}()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, userID := range m.expiredUserIDs(now) {
				wg.Add(1)
				go func(id int64) {
					defer wg.Done()
					if m.terminate(ctx, id, m.expiredNotice) {
						m.logger.Info("Session expired", "user_id", id)
					}
				}(userID)
			}
		}
	}
}

func (m *Manager) expiredUserIDs(now time.Time) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []int64
	for userID, s := range m.sessions {
		if s.idleFor(now) > m.timeout {
			expired = append(expired, userID)
		}
	}
	return expired
}

// StartFlow registers a new session for the user and starts the flow.
// An existing session is cancelled first.
func (m *Manager) StartFlow(ctx context.Context, userID, chatID int64, flow Flow) error {
	m.terminate(ctx, userID, "")

	s := newSession(userID, chatID, flow)

	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()

	if err := flow.Start(ctx, s); err != nil {
		m.terminate(ctx, userID, "")
		return fmt.Errorf("failed to start flow for user %d: %w", userID, err)
	}

	m.logger.Debug("Flow started", "user_id", userID, "state", s.State())
	return nil
}

// HandleMessage routes free text to the user's active flow. With no
// active session the default flow answers; no session is created.
func (m *Manager) HandleMessage(ctx context.Context, userID, chatID int64, text string) error {
	s := m.lookup(userID)
	if s == nil {
		transient := newSession(userID, chatID, m.defaultFlow)
		_, err := m.defaultFlow.OnMessage(ctx, transient, text)
		return err
	}

	s.touch()
	done, err := s.flow.OnMessage(ctx, s, text)
	if err != nil {
		m.logger.Error("Flow message handling failed, aborting flow", "user_id", userID, "error", err)
		m.terminate(ctx, userID, "")
		return err
	}
	if done {
		m.terminate(ctx, userID, "")
	}
	return nil
}

// HandleMenuChoice routes a menu selection to the user's active flow.
func (m *Manager) HandleMenuChoice(ctx context.Context, userID, chatID int64, choice string) error {
	s := m.lookup(userID)
	if s == nil {
		transient := newSession(userID, chatID, m.defaultFlow)
		_, err := m.defaultFlow.OnMenuChoice(ctx, transient, choice)
		return err
	}

	s.touch()
	done, err := s.flow.OnMenuChoice(ctx, s, choice)
	if err != nil {
		m.logger.Error("Flow choice handling failed, aborting flow", "user_id", userID, "error", err)
		m.terminate(ctx, userID, "")
		return err
	}
	if done {
		m.terminate(ctx, userID, "")
	}
	return nil
}

// Cancel explicitly terminates the user's session, sending the given
// notice. Returns false when no session was active.
func (m *Manager) Cancel(ctx context.Context, userID int64, notice string) bool {
	return m.terminate(ctx, userID, notice)
}

// Active reports whether the user has a live session.
func (m *Manager) Active(userID int64) bool {
	return m.lookup(userID) != nil
}

func (m *Manager) lookup(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

// terminate is the single termination routine all paths converge on:
// remove from the registry, revoke tracked prompts, best-effort notice,
// reset. Idempotent: a second call for the same user is a no-op
// because the session is already gone.
func (m *Manager) terminate(ctx context.Context, userID int64, notice string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	for _, ref := range s.takePrompts() {
		if err := m.messenger.DeleteMessage(ctx, ref); err != nil {
			m.logger.Warn("Failed to revoke prompt message", "user_id", userID, "message_id", ref.MessageID, "error", err)
		}
	}

	if notice != "" {
		if _, err := m.messenger.SendText(ctx, s.ChatID, notice, ""); err != nil {
			m.logger.Warn("Failed to send termination notice", "user_id", userID, "error", err)
		}
	}

	s.reset()
	return true
}
