// Package tasksdocstore stores tasks as documents in the "tasks" collection,
// translating between Task values and their field representation.
package tasksdocstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo"
	"github.com/jrazmi/taskdeck/infrastructure/docstore"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// Collection is the document collection holding all tasks, partitioned by
// the userId field.
const Collection = "tasks"

// Document field names.
const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldCompleted   = "completed"
	fieldDueDate     = "dueDate"
	fieldUserID      = "userId"
)

// Store provides task document access on any docstore.Store.
type Store struct {
	log   *logger.Logger
	store docstore.Store
}

// NewStore creates a new task store.
func NewStore(log *logger.Logger, store docstore.Store) *Store {
	return &Store{
		log:   log,
		store: store,
	}
}

// Create writes a new task document. Completed is force-set to false and the
// owner is stamped; the store assigns id and creation time.
func (s *Store) Create(ctx context.Context, userID string, ct tasksrepo.CreateTask) (string, error) {
	fields := docstore.Fields{
		fieldTitle:       strings.TrimSpace(ct.Title),
		fieldDescription: strings.TrimSpace(ct.Description),
		fieldCompleted:   false,
		fieldUserID:      userID,
	}
	if ct.DueDate != nil {
		fields[fieldDueDate] = docstore.EncodeTime(*ct.DueDate)
	}

	return s.store.CreateDocument(ctx, Collection, fields)
}

// List returns every task owned by userID, unordered.
func (s *Store) List(ctx context.Context, userID string) ([]tasksrepo.Task, error) {
	docs, err := s.store.ListDocuments(ctx, Collection, ownerFilter(userID))
	if err != nil {
		return nil, err
	}
	return toTasks(docs)
}

// Update merges the partial update into the task document. RemoveDueDate
// writes an explicit null so the store clears the field rather than leaving
// it untouched.
func (s *Store) Update(ctx context.Context, id string, ut tasksrepo.UpdateTask) error {
	fields := docstore.Fields{}
	if ut.Title != nil {
		fields[fieldTitle] = strings.TrimSpace(*ut.Title)
	}
	if ut.Description != nil {
		fields[fieldDescription] = strings.TrimSpace(*ut.Description)
	}
	if ut.Completed != nil {
		fields[fieldCompleted] = *ut.Completed
	}
	if ut.DueDate != nil {
		fields[fieldDueDate] = docstore.EncodeTime(*ut.DueDate)
	} else if ut.RemoveDueDate {
		fields[fieldDueDate] = nil
	}

	return s.store.UpdateDocument(ctx, Collection, id, fields)
}

// Delete permanently removes the task document.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.store.DeleteDocument(ctx, Collection, id)
}

// Subscribe opens a live feed over userID's tasks. A conversion goroutine
// turns each document snapshot into a sorted task set; store errors are
// mapped before publication so consumers never see a raw store error.
func (s *Store) Subscribe(ctx context.Context, userID string) (*tasksrepo.Feed, error) {
	sub, err := s.store.SubscribeDocuments(ctx, Collection, ownerFilter(userID))
	if err != nil {
		return nil, err
	}

	feed := tasksrepo.NewFeed(sub.Detach)

	go func() {
		defer feed.Close()

		snapshots := sub.Snapshots()
		errors := sub.Errs()
		for snapshots != nil || errors != nil {
			select {
			case docs, ok := <-snapshots:
				if !ok {
					snapshots = nil
					continue
				}
				tasks, err := toTasks(docs)
				if err != nil {
					s.log.ErrorContext(ctx, "task snapshot decode failed", "user_id", userID, "error", err)
					feed.PublishError(tasksrepo.MapStoreError(err))
					continue
				}
				tasksrepo.SortByCreatedDesc(tasks)
				feed.Publish(tasks)

			case err, ok := <-errors:
				if !ok {
					errors = nil
					continue
				}
				feed.PublishError(tasksrepo.MapStoreError(err))
			}
		}
	}()

	return feed, nil
}

// ListDueWithin returns userID's incomplete tasks due inside [now,
// now+window]. The time filtering happens client-side on the owner-filtered
// set, keeping the store query free of composite-index requirements.
func (s *Store) ListDueWithin(ctx context.Context, userID string, window time.Duration) ([]tasksrepo.Task, error) {
	tasks, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var due []tasksrepo.Task
	for _, t := range tasks {
		if t.DueSoonWithin(now, window) {
			due = append(due, t)
		}
	}
	return due, nil
}

func ownerFilter(userID string) docstore.Filter {
	return docstore.Filter{Field: fieldUserID, Equals: userID}
}

func toTasks(docs []docstore.Document) ([]tasksrepo.Task, error) {
	tasks := make([]tasksrepo.Task, 0, len(docs))
	for _, doc := range docs {
		t, err := toTask(doc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func toTask(doc docstore.Document) (tasksrepo.Task, error) {
	t := tasksrepo.Task{
		ID:        doc.ID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}

	t.Title, _ = doc.Fields[fieldTitle].(string)
	t.Description, _ = doc.Fields[fieldDescription].(string)
	t.Completed, _ = doc.Fields[fieldCompleted].(bool)
	t.UserID, _ = doc.Fields[fieldUserID].(string)

	if v, ok := doc.Fields[fieldDueDate]; ok && v != nil {
		due, err := docstore.DecodeTime(v)
		if err != nil {
			return tasksrepo.Task{}, fmt.Errorf("task %s: %w", doc.ID, err)
		}
		t.DueDate = &due
	}

	return t, nil
}
