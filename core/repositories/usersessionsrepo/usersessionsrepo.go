// Package usersessionsrepo tracks issued sign-in sessions. Each row backs
// one bearer token; revoking the row invalidates the token before it
// expires on its own.
package usersessionsrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrazmi/taskdeck/sdk/logger"
)

var (
	ErrNotFound = errors.New("session not found")
)

type Session struct {
	SessionID string     `db:"session_id" json:"session_id"`
	UserID    string     `db:"user_id" json:"user_id"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Active reports whether the session can still authenticate requests.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type CreateSession struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

type Storer interface {
	Create(ctx context.Context, cs CreateSession) (Session, error)
	GetByID(ctx context.Context, ID string) (Session, error)
	Revoke(ctx context.Context, ID string) error
	RevokeAllForUser(ctx context.Context, userID string) ([]string, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Repository struct {
	log    *logger.Logger
	storer Storer
}

func NewRepository(log *logger.Logger, storer Storer) *Repository {
	return &Repository{
		log:    log,
		storer: storer,
	}
}

func (r *Repository) Create(ctx context.Context, cs CreateSession) (Session, error) {
	session, err := r.storer.Create(ctx, cs)
	if err != nil {
		return Session{}, fmt.Errorf("session repository create: %w", err)
	}
	return session, nil
}

func (r *Repository) GetByID(ctx context.Context, ID string) (Session, error) {
	session, err := r.storer.GetByID(ctx, ID)
	if err != nil {
		return Session{}, fmt.Errorf("session repository get by id: %w", err)
	}
	return session, nil
}

func (r *Repository) Revoke(ctx context.Context, ID string) error {
	if err := r.storer.Revoke(ctx, ID); err != nil {
		return fmt.Errorf("session repository revoke: %w", err)
	}
	r.log.InfoContext(ctx, "session revoked", "session_id", ID)
	return nil
}

// RevokeAllForUser revokes every active session for the user and returns the
// revoked session ids so callers can evict dependent caches.
func (r *Repository) RevokeAllForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.storer.RevokeAllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("session repository revoke all: %w", err)
	}
	r.log.InfoContext(ctx, "all sessions revoked", "user_id", userID, "count", len(ids))
	return ids, nil
}

// DeleteExpired prunes sessions whose expiry passed before the given time.
func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.storer.DeleteExpired(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("session repository delete expired: %w", err)
	}
	if n > 0 {
		r.log.InfoContext(ctx, "expired sessions pruned", "count", n)
	}
	return n, nil
}
