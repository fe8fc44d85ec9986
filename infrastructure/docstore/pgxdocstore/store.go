// Package pgxdocstore implements the document store contract on PostgreSQL.
// Documents live in a single JSONB-backed table; the live feed is driven by
// a trigger that raises pg_notify on every change, and a dedicated listener
// connection that re-queries and fans out whole snapshots.
package pgxdocstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jrazmi/taskdeck/infrastructure/docstore"
	"github.com/jrazmi/taskdeck/infrastructure/postgresdb"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// PostgreSQL error classes relevant to the store taxonomy.
const (
	insufficientPrivilege = "42501"
	invalidAuthorization  = "28000"
	invalidPassword       = "28P01"
)

// Store provides document access on a pgx connection pool.
type Store struct {
	log      *logger.Logger
	pool     *postgresdb.Pool
	listener *listener
}

// NewStore constructs a store and starts its notification listener. Close
// must be called to release the listener connection.
func NewStore(ctx context.Context, log *logger.Logger, pool *postgresdb.Pool) *Store {
	s := &Store{
		log:  log,
		pool: pool,
	}
	s.listener = newListener(ctx, log, pool, s.snapshotFor)
	return s
}

// Close stops the notification listener. Open subscriptions are detached.
func (s *Store) Close() {
	s.listener.stop()
}

// CreateDocument stores a new document and returns its assigned id.
func (s *Store) CreateDocument(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	data, err := json.Marshal(stripNulls(fields))
	if err != nil {
		return "", docstore.NewStoreError(docstore.CodeUnknown, fmt.Errorf("encode fields: %w", err))
	}

	const q = `
	INSERT INTO documents (collection, document_id, fields)
	VALUES (@collection, @document_id, @fields)`

	id := uuid.NewString()
	args := pgx.NamedArgs{
		"collection":  collection,
		"document_id": id,
		"fields":      data,
	}

	if _, err := s.pool.Exec(ctx, q, args); err != nil {
		return "", storeError(err)
	}
	return id, nil
}

// ListDocuments returns every document in the collection matching the filter.
func (s *Store) ListDocuments(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	q := `
	SELECT document_id, fields, created_at, updated_at
	FROM documents
	WHERE collection = @collection`

	args := pgx.NamedArgs{"collection": collection}
	if filter.Field != "" {
		q += ` AND fields->>@filter_field = @filter_value`
		args["filter_field"] = filter.Field
		args["filter_value"] = filter.Equals
	}

	rows, err := s.pool.Query(ctx, q, args)
	if err != nil {
		return nil, storeError(err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			doc  docstore.Document
			data []byte
		)
		if err := rows.Scan(&doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, storeError(err)
		}
		if err := json.Unmarshal(data, &doc.Fields); err != nil {
			return nil, docstore.NewStoreError(docstore.CodeUnknown, fmt.Errorf("decode fields: %w", err))
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err)
	}
	return docs, nil
}

// UpdateDocument merges the non-nil fields into the document and removes the
// keys whose value is nil. UpdatedAt is always refreshed.
func (s *Store) UpdateDocument(ctx context.Context, collection string, id string, fields docstore.Fields) error {
	set := stripNulls(fields)
	unset := nullKeys(fields)

	data, err := json.Marshal(set)
	if err != nil {
		return docstore.NewStoreError(docstore.CodeUnknown, fmt.Errorf("encode fields: %w", err))
	}

	const q = `
	UPDATE documents
	SET fields = (fields || @set::jsonb) - @unset::text[],
	    updated_at = now()
	WHERE collection = @collection AND document_id = @document_id`

	args := pgx.NamedArgs{
		"collection":  collection,
		"document_id": id,
		"set":         data,
		"unset":       unset,
	}

	tag, err := s.pool.Exec(ctx, q, args)
	if err != nil {
		return storeError(err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.NewStoreError(docstore.CodeNotFound, fmt.Errorf("document %s/%s not found", collection, id))
	}
	return nil
}

// DeleteDocument permanently removes a document. Removing a missing document
// is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, collection string, id string) error {
	const q = `
	DELETE FROM documents
	WHERE collection = @collection AND document_id = @document_id`

	args := pgx.NamedArgs{
		"collection":  collection,
		"document_id": id,
	}

	if _, err := s.pool.Exec(ctx, q, args); err != nil {
		return storeError(err)
	}
	return nil
}

// SubscribeDocuments opens a live feed over the collection, delivering the
// initial snapshot immediately. Registration happens before the initial
// query so a change committed mid-query still fans out to this subscription,
// and the initial set is dropped if that fanout got there first.
func (s *Store) SubscribeDocuments(ctx context.Context, collection string, filter docstore.Filter) (*docstore.Subscription, error) {
	reg := s.listener.register(collection, filter)

	initial, err := s.ListDocuments(ctx, collection, filter)
	if err != nil {
		reg.sub.Detach()
		return nil, err
	}

	s.listener.deliverInitial(reg, initial)
	return reg.sub, nil
}

// snapshotFor is the listener's re-query callback.
func (s *Store) snapshotFor(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.ListDocuments(ctx, collection, filter)
}

func stripNulls(fields docstore.Fields) docstore.Fields {
	out := make(docstore.Fields, len(fields))
	for k, v := range fields {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func nullKeys(fields docstore.Fields) []string {
	keys := []string{}
	for k, v := range fields {
		if v == nil {
			keys = append(keys, k)
		}
	}
	return keys
}

// storeError maps a pgx error onto the store taxonomy.
func storeError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case insufficientPrivilege:
			return docstore.NewStoreError(docstore.CodePermissionDenied, err)
		case invalidAuthorization, invalidPassword:
			return docstore.NewStoreError(docstore.CodeUnauthenticated, err)
		}
	}

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return docstore.NewStoreError(docstore.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return docstore.NewStoreError(docstore.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return docstore.NewStoreError(docstore.CodeUnavailable, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return docstore.NewStoreError(docstore.CodeUnavailable, err)
	}

	return docstore.NewStoreError(docstore.CodeUnknown, err)
}
