package authn_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrazmi/taskdeck/core/authn"
	"github.com/jrazmi/taskdeck/core/repositories/usersessionsrepo"
	"github.com/jrazmi/taskdeck/core/repositories/usersrepo"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

type memUserStore struct {
	mu      sync.Mutex
	byEmail map[string]usersrepo.User
	nextID  int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{byEmail: make(map[string]usersrepo.User)}
}

func (m *memUserStore) Create(ctx context.Context, cu usersrepo.CreateUser) (usersrepo.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[cu.Email]; ok {
		return usersrepo.User{}, usersrepo.ErrEmailTaken
	}
	m.nextID++
	user := usersrepo.User{
		UserID:       string(rune('a' + m.nextID)),
		Email:        cu.Email,
		DisplayName:  cu.DisplayName,
		PasswordHash: cu.PasswordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.byEmail[cu.Email] = user
	return user, nil
}

func (m *memUserStore) GetByID(ctx context.Context, ID string) (usersrepo.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.UserID == ID {
			return u, nil
		}
	}
	return usersrepo.User{}, usersrepo.ErrNotFound
}

func (m *memUserStore) GetByEmail(ctx context.Context, email string) (usersrepo.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return usersrepo.User{}, usersrepo.ErrNotFound
	}
	return u, nil
}

type memSessionStore struct {
	mu   sync.Mutex
	byID map[string]usersessionsrepo.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{byID: make(map[string]usersessionsrepo.Session)}
}

func (m *memSessionStore) Create(ctx context.Context, cs usersessionsrepo.CreateSession) (usersessionsrepo.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := usersessionsrepo.Session{
		SessionID: cs.SessionID,
		UserID:    cs.UserID,
		ExpiresAt: cs.ExpiresAt,
		CreatedAt: time.Now(),
	}
	m.byID[cs.SessionID] = session
	return session, nil
}

func (m *memSessionStore) GetByID(ctx context.Context, ID string) (usersessionsrepo.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[ID]
	if !ok {
		return usersessionsrepo.Session{}, usersessionsrepo.ErrNotFound
	}
	return s, nil
}

func (m *memSessionStore) Revoke(ctx context.Context, ID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[ID]
	if !ok || s.RevokedAt != nil {
		return nil
	}
	now := time.Now()
	s.RevokedAt = &now
	m.byID[ID] = s
	return nil
}

func (m *memSessionStore) RevokeAllForUser(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var ids []string
	for id, s := range m.byID {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			m.byID[id] = s
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memSessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.byID {
		if s.ExpiresAt.Before(before) {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func newService(t *testing.T) *authn.Service {
	t.Helper()
	log := logger.NewDefault(logger.WithLevel("ERROR"))
	users := usersrepo.NewRepository(log, newMemUserStore())
	sessions := usersessionsrepo.NewRepository(log, newMemSessionStore())
	return authn.New(log, users, sessions, nil, authn.Options{
		Secret:   "test-secret",
		TokenTTL: time.Hour,
	})
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, "alice@example.com", "correct-horse", "Alice")
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if user.PasswordHash == "correct-horse" {
		t.Fatal("password stored in the clear")
	}

	token, got, err := s.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if token == "" {
		t.Fatal("Login() returned empty token")
	}
	if got.UserID != user.UserID {
		t.Errorf("Login() user id = %q, want %q", got.UserID, user.UserID)
	}

	identity, err := s.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate() failed: %v", err)
	}
	if identity.UserID != user.UserID {
		t.Errorf("identity user id = %q, want %q", identity.UserID, user.UserID)
	}
	if identity.Email != "alice@example.com" {
		t.Errorf("identity email = %q, want alice@example.com", identity.Email)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	s := newService(t)

	_, err := s.Register(context.Background(), "alice@example.com", "short", "Alice")
	if !errors.Is(err, authn.ErrWeakPassword) {
		t.Errorf("Register() error = %v, want ErrWeakPassword", err)
	}
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	s := newService(t)

	_, err := s.Register(context.Background(), "not-an-email", "correct-horse", "Alice")
	if err == nil {
		t.Error("Register() with bad email succeeded")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "alice@example.com", "correct-horse", "Alice"); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}
	_, err := s.Register(ctx, "alice@example.com", "other-password", "Alice Again")
	if !errors.Is(err, usersrepo.ErrEmailTaken) {
		t.Errorf("second Register() error = %v, want ErrEmailTaken", err)
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "alice@example.com", "correct-horse", "Alice"); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "alice@example.com", "battery-staple"},
		{"unknown email", "bob@example.com", "correct-horse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, authn.ErrInvalidCredentials) {
				t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	s := newService(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "nonsense"},
		{"wrong signature", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJ4In0.invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Authenticate(context.Background(), tt.token)
			if !errors.Is(err, authn.ErrInvalidToken) {
				t.Errorf("Authenticate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "alice@example.com", "correct-horse", "Alice"); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	token, _, err := s.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	if err := s.Logout(ctx, token); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}

	_, err = s.Authenticate(ctx, token)
	if !errors.Is(err, authn.ErrSessionRevoked) {
		t.Errorf("Authenticate() after logout error = %v, want ErrSessionRevoked", err)
	}

	// A second logout with the same token is harmless.
	if err := s.Logout(ctx, token); err != nil {
		t.Errorf("second Logout() failed: %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "alice@example.com", "correct-horse", "Alice"); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	// Two concurrent sign-ins, as from two devices.
	first, _, err := s.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("first Login() failed: %v", err)
	}
	second, _, err := s.Login(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("second Login() failed: %v", err)
	}

	if err := s.LogoutAll(ctx, first); err != nil {
		t.Fatalf("LogoutAll() failed: %v", err)
	}

	for name, token := range map[string]string{"first": first, "second": second} {
		if _, err := s.Authenticate(ctx, token); !errors.Is(err, authn.ErrSessionRevoked) {
			t.Errorf("Authenticate(%s) after LogoutAll error = %v, want ErrSessionRevoked", name, err)
		}
	}
}

func TestLogoutAllRejectsInvalidToken(t *testing.T) {
	s := newService(t)

	if err := s.LogoutAll(context.Background(), "nonsense"); !errors.Is(err, authn.ErrInvalidToken) {
		t.Errorf("LogoutAll() error = %v, want ErrInvalidToken", err)
	}
}
