package tasksbridge

import (
	"context"
	"errors"
	"net/http"

	"github.com/jrazmi/taskdeck/bridge/scaffolding/errs"
	"github.com/jrazmi/taskdeck/bridge/scaffolding/mid"
	"github.com/jrazmi/taskdeck/core/tasksession"
	"github.com/jrazmi/taskdeck/infrastructure/web"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// Config holds configuration for the tasks bridge.
type Config struct {
	Log      *logger.Logger
	Sessions *tasksession.Manager
	Auth     mid.Authenticator
}

// AddHttpRoutes registers all HTTP routes for tasks.
func AddHttpRoutes(group *web.RouteGroup, cfg Config) {
	b := newBridge(cfg.Log, cfg.Sessions)

	authed := mid.Authenticate(cfg.Auth)

	group.GET("/tasks", b.httpState, authed)
	group.POST("/tasks", b.httpCreate, authed)
	group.PUT("/tasks/{task_id}", b.httpUpdate, authed)
	group.POST("/tasks/{task_id}/toggle", b.httpToggle, authed)
	group.DELETE("/tasks/{task_id}", b.httpDelete, authed)
	group.POST("/tasks/refresh", b.httpRefresh, authed)
	group.GET("/tasks/ws", b.httpStream, authed)
}

// session resolves the caller's live task session, opening one on first
// use.
func (b *bridge) session(ctx context.Context) (*tasksession.Session, error) {
	userID, err := mid.GetUserID(ctx)
	if err != nil {
		return nil, errs.New(errs.Unauthenticated, err)
	}

	s, err := b.sessions.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *bridge) httpState(ctx context.Context, r *http.Request) web.Encoder {
	s, err := b.session(ctx)
	if err != nil {
		return asErrs(err)
	}

	return web.NewJSONResponse(MarshalStateToBridge(s.Snapshot()))
}

func (b *bridge) httpCreate(ctx context.Context, r *http.Request) web.Encoder {
	var input CreateTaskInput
	if err := web.Decode(r, &input); err != nil {
		return errs.Newf(errs.InvalidArgument, "decode: %s", err)
	}

	s, err := b.session(ctx)
	if err != nil {
		return asErrs(err)
	}

	id, err := s.Add(ctx, MarshalCreateToRepository(input))
	if err != nil {
		return asErrs(err)
	}

	resp := struct {
		ID string `json:"id"`
	}{ID: id}
	return web.NewJSONResponseWithStatus(resp, http.StatusCreated)
}

func (b *bridge) httpUpdate(ctx context.Context, r *http.Request) web.Encoder {
	var input UpdateTaskInput
	if err := web.Decode(r, &input); err != nil {
		return errs.Newf(errs.InvalidArgument, "decode: %s", err)
	}

	s, err := b.session(ctx)
	if err != nil {
		return asErrs(err)
	}

	if err := s.Update(ctx, web.Param(r, "task_id"), MarshalUpdateToRepository(input)); err != nil {
		return asErrs(err)
	}

	return web.NewNoResponse()
}

func (b *bridge) httpToggle(ctx context.Context, r *http.Request) web.Encoder {
	s, err := b.session(ctx)
	if err != nil {
		return asErrs(err)
	}

	if err := s.ToggleComplete(ctx, web.Param(r, "task_id")); err != nil {
		return asErrs(err)
	}

	return web.NewNoResponse()
}

func (b *bridge) httpDelete(ctx context.Context, r *http.Request) web.Encoder {
	s, err := b.session(ctx)
	if err != nil {
		return asErrs(err)
	}

	if err := s.Delete(ctx, web.Param(r, "task_id")); err != nil {
		return asErrs(err)
	}

	return web.NewNoResponse()
}

func (b *bridge) httpRefresh(ctx context.Context, r *http.Request) web.Encoder {
	s, err := b.session(ctx)
	if err != nil {
		return asErrs(err)
	}

	if err := s.Refresh(ctx); err != nil {
		return asErrs(err)
	}

	return web.NewJSONResponse(MarshalStateToBridge(s.Snapshot()))
}

// asErrs keeps typed errors intact and wraps everything else as internal.
func asErrs(err error) *errs.Error {
	var appErr *errs.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return errs.New(errs.Internal, err)
}
