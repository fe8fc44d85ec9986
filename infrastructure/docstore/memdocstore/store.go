// Package memdocstore is an in-memory document store with the same snapshot
// semantics as the Postgres-backed store. It backs unit tests and local
// development runs that have no database available.
package memdocstore

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jrazmi/taskdeck/infrastructure/docstore"
)

type subscriber struct {
	collection string
	filter     docstore.Filter
	sub        *docstore.Subscription
}

// Store implements docstore.Store entirely in memory.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]docstore.Document
	subscribers map[int]*subscriber
	nextSubID   int

	// now is replaceable so tests can control server timestamps.
	now func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Document),
		subscribers: make(map[int]*subscriber),
		now:         time.Now,
	}
}

// SetClock replaces the timestamp source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateDocument stores a new document and returns its assigned id.
func (s *Store) CreateDocument(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ctxError(err)
	}

	s.mu.Lock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]docstore.Document)
		s.collections[collection] = coll
	}

	now := s.now()
	id := uuid.NewString()
	coll[id] = docstore.Document{
		ID:        id,
		Fields:    cloneFields(fields),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Unlock()

	s.notify(collection)
	return id, nil
}

// ListDocuments returns every document in the collection matching the filter.
func (s *Store) ListDocuments(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, ctxError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(collection, filter), nil
}

// UpdateDocument merges the given fields into an existing document. A nil
// field value clears the field.
func (s *Store) UpdateDocument(ctx context.Context, collection string, id string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return ctxError(err)
	}

	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return docstore.NewStoreError(docstore.CodeNotFound, fmt.Errorf("document %s/%s not found", collection, id))
	}

	for k, v := range fields {
		if v == nil {
			delete(doc.Fields, k)
			continue
		}
		doc.Fields[k] = v
	}
	doc.UpdatedAt = s.now()
	s.collections[collection][id] = doc
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// DeleteDocument permanently removes a document. Removing a missing document
// is a no-op, matching the remote store's behavior.
func (s *Store) DeleteDocument(ctx context.Context, collection string, id string) error {
	if err := ctx.Err(); err != nil {
		return ctxError(err)
	}

	s.mu.Lock()
	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// SubscribeDocuments opens a live feed. The initial snapshot is delivered
// immediately; every subsequent mutation in the collection delivers the full
// matching set again.
func (s *Store) SubscribeDocuments(ctx context.Context, collection string, filter docstore.Filter) (*docstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, ctxError(err)
	}

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++

	sub := docstore.NewSubscription(8, func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	})

	s.subscribers[id] = &subscriber{
		collection: collection,
		filter:     filter,
		sub:        sub,
	}

	initial := s.listLocked(collection, filter)
	s.mu.Unlock()

	sub.Deliver(initial)
	return sub, nil
}

// FailSubscriptions injects a feed error into every open subscription for
// the collection. Intended for tests exercising error paths.
func (s *Store) FailSubscriptions(collection string, err error) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sc := range s.subscribers {
		if sc.collection == collection {
			subs = append(subs, sc)
		}
	}
	s.mu.Unlock()

	for _, sc := range subs {
		sc.sub.DeliverError(err)
	}
}

func (s *Store) listLocked(collection string, filter docstore.Filter) []docstore.Document {
	var out []docstore.Document
	for _, doc := range s.collections[collection] {
		if !matches(doc, filter) {
			continue
		}
		doc.Fields = cloneFields(doc.Fields)
		out = append(out, doc)
	}
	return out
}

func (s *Store) notify(collection string) {
	s.mu.Lock()
	type delivery struct {
		sub  *docstore.Subscription
		docs []docstore.Document
	}
	deliveries := make([]delivery, 0, len(s.subscribers))
	for _, sc := range s.subscribers {
		if sc.collection != collection {
			continue
		}
		deliveries = append(deliveries, delivery{sub: sc.sub, docs: s.listLocked(collection, sc.filter)})
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		d.sub.Deliver(d.docs)
	}
}

func matches(doc docstore.Document, filter docstore.Filter) bool {
	if filter.Field == "" {
		return true
	}
	v, ok := doc.Fields[filter.Field]
	if !ok {
		return false
	}
	sv, ok := v.(string)
	return ok && sv == filter.Equals
}

func cloneFields(fields docstore.Fields) docstore.Fields {
	out := make(docstore.Fields, len(fields))
	maps.Copy(out, fields)
	return out
}

func ctxError(err error) error {
	if err == context.DeadlineExceeded {
		return docstore.NewStoreError(docstore.CodeDeadlineExceeded, err)
	}
	return docstore.NewStoreError(docstore.CodeUnavailable, err)
}
