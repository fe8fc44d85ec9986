// Package usersrepo provides data access for user accounts.
package usersrepo

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jrazmi/taskdeck/sdk/logger"
)

// Set of error values for CRUD operations on the user resource.
var (
	ErrNotFound     = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidEmail = errors.New("invalid email address")
)

type User struct {
	UserID       string    `db:"user_id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type CreateUser struct {
	Email        string
	DisplayName  string
	PasswordHash string
}

func (c CreateUser) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		return ErrInvalidEmail
	}
	if c.PasswordHash == "" {
		return errors.New("password hash required")
	}
	return nil
}

type Storer interface {
	Create(ctx context.Context, cu CreateUser) (User, error)
	GetByID(ctx context.Context, ID string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
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

func (r *Repository) Create(ctx context.Context, cu CreateUser) (User, error) {
	if err := cu.Validate(); err != nil {
		return User{}, fmt.Errorf("validating user: %w", err)
	}
	cu.Email = normalizeEmail(cu.Email)

	user, err := r.storer.Create(ctx, cu)
	if err != nil {
		return User{}, fmt.Errorf("user repository create: %w", err)
	}

	r.log.InfoContext(ctx, "user created", "user_id", user.UserID)
	return user, nil
}

func (r *Repository) GetByID(ctx context.Context, ID string) (User, error) {
	user, err := r.storer.GetByID(ctx, ID)
	if err != nil {
		return User{}, fmt.Errorf("user repository get by id: %w", err)
	}
	return user, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	user, err := r.storer.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return User{}, fmt.Errorf("user repository get by email: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
