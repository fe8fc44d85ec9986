// Package tasksrepo provides data access for tasks: CRUD against the
// document store plus a live feed of a user's full task set. All store
// failures are translated into the application error taxonomy before they
// reach a caller.
package tasksrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jrazmi/taskdeck/bridge/scaffolding/errs"
	"github.com/jrazmi/taskdeck/infrastructure/docstore"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// Validation errors raised before a write reaches the store.
var (
	ErrTitleRequired      = errors.New("task title must not be empty")
	ErrConflictingDueDate = errors.New("due date cannot be both set and removed")
)

// Storer defines the storage contract for tasks. Implementations translate
// between Task values and their document representation; see
// stores/tasksdocstore.
type Storer interface {
	Create(ctx context.Context, userID string, ct CreateTask) (string, error)
	List(ctx context.Context, userID string) ([]Task, error)
	Update(ctx context.Context, id string, ut UpdateTask) error
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context, userID string) (*Feed, error)
	ListDueWithin(ctx context.Context, userID string, window time.Duration) ([]Task, error)
}

// Repository provides access to task storage.
type Repository struct {
	log    *logger.Logger
	storer Storer
}

// NewRepository creates a new task repository.
func NewRepository(log *logger.Logger, storer Storer) *Repository {
	return &Repository{
		log:    log,
		storer: storer,
	}
}

// Create stores a new task owned by userID and returns its assigned id. The
// task always starts incomplete regardless of caller input; the store stamps
// owner and creation time.
func (r *Repository) Create(ctx context.Context, userID string, ct CreateTask) (string, error) {
	if err := ct.Validate(); err != nil {
		return "", errs.New(errs.InvalidArgument, err)
	}

	id, err := r.storer.Create(ctx, userID, ct)
	if err != nil {
		r.log.ErrorContext(ctx, "task create failed", "user_id", userID, "error", err)
		return "", MapStoreError(err)
	}

	r.log.InfoContext(ctx, "task created", "task_id", id, "user_id", userID)
	return id, nil
}

// GetAll fetches every task owned by userID, newest first. Ordering happens
// client-side; the store query is unordered.
func (r *Repository) GetAll(ctx context.Context, userID string) ([]Task, error) {
	tasks, err := r.storer.List(ctx, userID)
	if err != nil {
		r.log.ErrorContext(ctx, "task list failed", "user_id", userID, "error", err)
		return nil, MapStoreError(err)
	}

	SortByCreatedDesc(tasks)
	return tasks, nil
}

// Update writes only the fields present in ut. The store always refreshes
// UpdatedAt, even for an empty update.
func (r *Repository) Update(ctx context.Context, id string, ut UpdateTask) error {
	if err := ut.Validate(); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	if err := r.storer.Update(ctx, id, ut); err != nil {
		r.log.ErrorContext(ctx, "task update failed", "task_id", id, "error", err)
		return MapStoreError(err)
	}
	return nil
}

// Delete permanently removes a task. There is no tombstone.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.storer.Delete(ctx, id); err != nil {
		r.log.ErrorContext(ctx, "task delete failed", "task_id", id, "error", err)
		return MapStoreError(err)
	}

	r.log.InfoContext(ctx, "task deleted", "task_id", id)
	return nil
}

// Subscribe opens a live feed of userID's complete task set. Every change
// delivers the whole set again, newest first; detaching the feed is the only
// way to stop delivery.
func (r *Repository) Subscribe(ctx context.Context, userID string) (*Feed, error) {
	feed, err := r.storer.Subscribe(ctx, userID)
	if err != nil {
		r.log.ErrorContext(ctx, "task subscribe failed", "user_id", userID, "error", err)
		return nil, MapStoreError(err)
	}

	r.log.InfoContext(ctx, "task feed opened", "user_id", userID)
	return feed, nil
}

// DueSoonWithin returns userID's incomplete tasks whose due date falls
// inside [now, now+window].
func (r *Repository) DueSoonWithin(ctx context.Context, userID string, window time.Duration) ([]Task, error) {
	tasks, err := r.storer.ListDueWithin(ctx, userID, window)
	if err != nil {
		r.log.ErrorContext(ctx, "task due-soon list failed", "user_id", userID, "error", err)
		return nil, MapStoreError(err)
	}

	SortByCreatedDesc(tasks)
	return tasks, nil
}

// MapStoreError converts a document store failure into the application
// taxonomy using a fixed table over the store's own error codes. Feed
// goroutines use it too, so no raw store error ever crosses the data access
// boundary.
func MapStoreError(err error) error {
	if err == nil {
		return nil
	}

	switch docstore.ErrorCode(err) {
	case docstore.CodePermissionDenied:
		return errs.Newf(errs.PermissionDenied, "permission denied: check that you are signed in with access to this data")
	case docstore.CodeUnavailable:
		return errs.Newf(errs.Unavailable, "service temporarily unavailable: try again")
	case docstore.CodeDeadlineExceeded:
		return errs.Newf(errs.DeadlineExceeded, "operation timed out: check your connection")
	case docstore.CodeUnauthenticated:
		return errs.Newf(errs.Unauthenticated, "not authenticated: sign in again")
	case docstore.CodeNotFound:
		return errs.Newf(errs.NotFound, "task not found")
	default:
		return errs.Newf(errs.Unknown, "backend error: %s", err)
	}
}
