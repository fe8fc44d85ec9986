// Package authbridge exposes account registration and sign-in over HTTP.
// Signing in opens the user's task session; signing out closes it.
package authbridge

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jrazmi/taskdeck/bridge/scaffolding/errs"
	"github.com/jrazmi/taskdeck/bridge/scaffolding/mid"
	"github.com/jrazmi/taskdeck/core/authn"
	"github.com/jrazmi/taskdeck/core/repositories/usersrepo"
	"github.com/jrazmi/taskdeck/core/tasksession"
	"github.com/jrazmi/taskdeck/infrastructure/web"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// Config holds configuration for the auth bridge.
type Config struct {
	Log      *logger.Logger
	Auth     *authn.Service
	Sessions *tasksession.Manager
}

type bridge struct {
	log      *logger.Logger
	auth     *authn.Service
	sessions *tasksession.Manager
}

func newBridge(cfg Config) *bridge {
	return &bridge{
		log:      cfg.Log,
		auth:     cfg.Auth,
		sessions: cfg.Sessions,
	}
}

// AddHttpRoutes registers all HTTP routes for auth.
func AddHttpRoutes(group *web.RouteGroup, cfg Config) {
	b := newBridge(cfg)

	authed := mid.Authenticate(cfg.Auth)

	group.POST("/auth/register", b.httpRegister)
	group.POST("/auth/login", b.httpLogin)
	group.POST("/auth/logout", b.httpLogout, authed)
	group.POST("/auth/logout-all", b.httpLogoutAll, authed)
	group.GET("/auth/me", b.httpMe, authed)
}

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (i RegisterInput) Validate() error {
	if strings.TrimSpace(i.Email) == "" {
		return errors.New("email is required")
	}
	if i.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (i LoginInput) Validate() error {
	if strings.TrimSpace(i.Email) == "" {
		return errors.New("email is required")
	}
	if i.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func marshalUser(u usersrepo.User) User {
	return User{
		ID:          u.UserID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
}

func (b *bridge) httpRegister(ctx context.Context, r *http.Request) web.Encoder {
	var input RegisterInput
	if err := web.Decode(r, &input); err != nil {
		return errs.Newf(errs.InvalidArgument, "decode: %s", err)
	}

	user, err := b.auth.Register(ctx, input.Email, input.Password, input.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, usersrepo.ErrEmailTaken):
			return errs.Newf(errs.InvalidArgument, "email already registered")
		case errors.Is(err, usersrepo.ErrInvalidEmail), errors.Is(err, authn.ErrWeakPassword):
			return errs.New(errs.InvalidArgument, err)
		default:
			return errs.New(errs.Internal, err)
		}
	}

	return web.NewJSONResponseWithStatus(marshalUser(user), http.StatusCreated)
}

func (b *bridge) httpLogin(ctx context.Context, r *http.Request) web.Encoder {
	var input LoginInput
	if err := web.Decode(r, &input); err != nil {
		return errs.Newf(errs.InvalidArgument, "decode: %s", err)
	}

	token, user, err := b.auth.Login(ctx, input.Email, input.Password)
	if err != nil {
		if errors.Is(err, authn.ErrInvalidCredentials) {
			return errs.Newf(errs.Unauthenticated, "invalid email or password")
		}
		return errs.New(errs.Internal, err)
	}

	if _, err := b.sessions.Open(ctx, user.UserID); err != nil {
		b.log.ErrorContext(ctx, "opening task session on login", "user_id", user.UserID, "error", err)
	}

	return web.NewJSONResponse(LoginResponse{
		Token: token,
		User:  marshalUser(user),
	})
}

func (b *bridge) httpLogout(ctx context.Context, r *http.Request) web.Encoder {
	identity, err := mid.GetIdentity(ctx)
	if err != nil {
		return errs.New(errs.Unauthenticated, err)
	}

	token, err := mid.GetToken(ctx)
	if err != nil {
		return errs.New(errs.Unauthenticated, err)
	}
	if err := b.auth.Logout(ctx, token); err != nil {
		return errs.New(errs.Internal, err)
	}

	b.sessions.Close(identity.UserID)

	return web.NewNoResponse()
}

// httpLogoutAll signs the user out everywhere by revoking every session they
// hold, not just the presented one.
func (b *bridge) httpLogoutAll(ctx context.Context, r *http.Request) web.Encoder {
	identity, err := mid.GetIdentity(ctx)
	if err != nil {
		return errs.New(errs.Unauthenticated, err)
	}

	token, err := mid.GetToken(ctx)
	if err != nil {
		return errs.New(errs.Unauthenticated, err)
	}
	if err := b.auth.LogoutAll(ctx, token); err != nil {
		return errs.New(errs.Internal, err)
	}

	b.sessions.Close(identity.UserID)

	return web.NewNoResponse()
}

func (b *bridge) httpMe(ctx context.Context, r *http.Request) web.Encoder {
	identity, err := mid.GetIdentity(ctx)
	if err != nil {
		return errs.New(errs.Unauthenticated, err)
	}

	return web.NewJSONResponse(User{
		ID:          identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	})
}
