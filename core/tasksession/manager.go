package tasksession

import (
	"context"
	"sync"

	"github.com/jrazmi/taskdeck/core/reminders"
	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// Manager owns the open sessions, one per signed-in user. Sign-in opens a
// session, sign-out closes it, and signing in again replaces the old one.
type Manager struct {
	log       *logger.Logger
	repo      *tasksrepo.Repository
	scheduler *reminders.Scheduler

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(log *logger.Logger, repo *tasksrepo.Repository, scheduler *reminders.Scheduler) *Manager {
	return &Manager{
		log:       log,
		repo:      repo,
		scheduler: scheduler,
		sessions:  make(map[string]*Session),
	}
}

// Open starts a session for the user, replacing and closing any existing
// one.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	old := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	s, err := Open(ctx, m.log, m.repo, m.scheduler, userID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()

	m.log.Info("task session opened", "user_id", userID)
	return s, nil
}

// Ensure returns the user's open session, opening one if needed.
func (m *Manager) Ensure(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	return m.Open(ctx, userID)
}

// Get returns the user's open session, if any.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Send routes a fired notification to the owning user's open session. A user
// with no session is simply offline; the notification is dropped without
// error. Send implements reminders.Notifier.
func (m *Manager) Send(ctx context.Context, n reminders.Notification) error {
	s, ok := m.Get(n.UserID)
	if !ok {
		return nil
	}
	s.Notify(n)
	return nil
}

// Close ends the user's session. Closing a user with no session is a no-op.
func (m *Manager) Close(userID string) {
	m.mu.Lock()
	s := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if s != nil {
		s.Close()
		m.log.Info("task session closed", "user_id", userID)
	}
}

// CloseAll ends every open session. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
