package memdocstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrazmi/taskdeck/infrastructure/docstore"
)

func waitSnapshot(t *testing.T, sub *docstore.Subscription) []docstore.Document {
	t.Helper()
	select {
	case docs := <-sub.Snapshots():
		return docs
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	id, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"title": "write tests"})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if id == "" {
		t.Fatal("CreateDocument() returned empty id")
	}

	docs, err := store.ListDocuments(ctx, "tasks", docstore.Filter{})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
	if docs[0].ID != id {
		t.Fatalf("doc id = %q, want %q", docs[0].ID, id)
	}
	if docs[0].Fields["title"] != "write tests" {
		t.Fatalf("title = %v, want %q", docs[0].Fields["title"], "write tests")
	}
	if docs[0].CreatedAt.IsZero() || docs[0].UpdatedAt.IsZero() {
		t.Fatal("server timestamps not set")
	}
}

func TestListIsolatesCollections(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"title": "a"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	docs, err := store.ListDocuments(ctx, "other", docstore.Filter{})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("len(docs) = %d, want 0", len(docs))
	}
}

func TestFilterMatchesFieldEquality(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"userId": "alice", "title": "a"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"userId": "bob", "title": "b"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"title": "ownerless"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	docs, err := store.ListDocuments(ctx, "tasks", docstore.Filter{Field: "userId", Equals: "alice"})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
	if docs[0].Fields["title"] != "a" {
		t.Fatalf("title = %v, want %q", docs[0].Fields["title"], "a")
	}
}

func TestUpdateMergesAndClearsFields(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	id, err := store.CreateDocument(ctx, "tasks", docstore.Fields{
		"title":   "before",
		"dueDate": docstore.EncodeTime(base.Add(24 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	store.SetClock(func() time.Time { return base.Add(time.Minute) })

	// Present key updates, nil key clears, absent key is untouched.
	err = store.UpdateDocument(ctx, "tasks", id, docstore.Fields{
		"title":   "after",
		"dueDate": nil,
	})
	if err != nil {
		t.Fatalf("UpdateDocument() error = %v", err)
	}

	docs, err := store.ListDocuments(ctx, "tasks", docstore.Filter{})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	doc := docs[0]

	if doc.Fields["title"] != "after" {
		t.Fatalf("title = %v, want %q", doc.Fields["title"], "after")
	}
	if _, ok := doc.Fields["dueDate"]; ok {
		t.Fatal("dueDate still present after explicit null")
	}
	if !doc.CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v, want %v", doc.CreatedAt, base)
	}
	if !doc.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("UpdatedAt = %v, want %v", doc.UpdatedAt, base.Add(time.Minute))
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.UpdateDocument(ctx, "tasks", "nope", docstore.Fields{"title": "x"})
	if err == nil {
		t.Fatal("UpdateDocument() expected error")
	}
	if code := docstore.ErrorCode(err); code != docstore.CodeNotFound {
		t.Fatalf("ErrorCode() = %q, want %q", code, docstore.CodeNotFound)
	}
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.DeleteDocument(ctx, "tasks", "nope"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
}

func TestSubscriptionDeliversWholeSets(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"userId": "alice", "title": "first"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	sub, err := store.SubscribeDocuments(ctx, "tasks", docstore.Filter{Field: "userId", Equals: "alice"})
	if err != nil {
		t.Fatalf("SubscribeDocuments() error = %v", err)
	}
	defer sub.Detach()

	initial := waitSnapshot(t, sub)
	if len(initial) != 1 {
		t.Fatalf("initial snapshot has %d documents, want 1", len(initial))
	}

	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"userId": "alice", "title": "second"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	next := waitSnapshot(t, sub)
	if len(next) != 2 {
		t.Fatalf("snapshot has %d documents, want the full set of 2", len(next))
	}

	// Mutations outside the filter are still collection changes and redeliver
	// the matching set, which must stay at 2.
	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"userId": "bob", "title": "other"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	filtered := waitSnapshot(t, sub)
	if len(filtered) != 2 {
		t.Fatalf("snapshot has %d documents, want 2", len(filtered))
	}
}

func TestDetachStopsDelivery(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	sub, err := store.SubscribeDocuments(ctx, "tasks", docstore.Filter{})
	if err != nil {
		t.Fatalf("SubscribeDocuments() error = %v", err)
	}
	waitSnapshot(t, sub)

	sub.Detach()

	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"title": "late"}); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	if docs, ok := <-sub.Snapshots(); ok {
		t.Fatalf("received snapshot %+v after Detach", docs)
	}
}

func TestFailSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	sub, err := store.SubscribeDocuments(ctx, "tasks", docstore.Filter{})
	if err != nil {
		t.Fatalf("SubscribeDocuments() error = %v", err)
	}
	defer sub.Detach()
	waitSnapshot(t, sub)

	injected := errors.New("backend offline")
	store.FailSubscriptions("tasks", injected)

	select {
	case err := <-sub.Errs():
		if !errors.Is(err, injected) {
			t.Fatalf("feed error = %v, want %v", err, injected)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feed error")
	}
}

func TestCancelledContext(t *testing.T) {
	store := NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.CreateDocument(ctx, "tasks", docstore.Fields{"title": "x"}); err == nil {
		t.Fatal("CreateDocument() expected error on cancelled context")
	} else if code := docstore.ErrorCode(err); code != docstore.CodeUnavailable {
		t.Fatalf("ErrorCode() = %q, want %q", code, docstore.CodeUnavailable)
	}
}
