// Package docstore defines the document-oriented storage contract the
// service is built against: keyed documents grouped into collections, partial
// field updates with explicit nulls, and live queries that deliver the whole
// matching set on every change.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Fields holds a document's field values. A key present with a nil value is
// an explicit null, which is distinguishable from the key being absent; a
// partial update uses that distinction to clear a field versus leaving it
// untouched.
type Fields map[string]any

// Document is a stored record. CreatedAt and UpdatedAt are server
// timestamps maintained by the store: CreatedAt is fixed at creation and
// UpdatedAt is refreshed on every write.
type Document struct {
	ID        string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter restricts a list or subscription to documents whose field equals
// the given value. The zero Filter matches everything.
type Filter struct {
	Field  string
	Equals string
}

// Store is the backend document store contract.
type Store interface {
	// CreateDocument stores a new document and returns its assigned id.
	CreateDocument(ctx context.Context, collection string, fields Fields) (string, error)

	// ListDocuments returns every document in the collection matching the
	// filter. No ordering is guaranteed; callers sort client-side.
	ListDocuments(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// UpdateDocument writes only the fields present in the given set. A nil
	// value clears the field. UpdatedAt is always refreshed.
	UpdateDocument(ctx context.Context, collection string, id string, fields Fields) error

	// DeleteDocument permanently removes a document.
	DeleteDocument(ctx context.Context, collection string, id string) error

	// SubscribeDocuments opens a live feed over the collection. The initial
	// snapshot and every subsequent change deliver the complete matching
	// set, never a diff. Detach is the only way to stop delivery.
	SubscribeDocuments(ctx context.Context, collection string, filter Filter) (*Subscription, error)
}

// Store error codes. Repositories map these onto the application taxonomy;
// no other error classification crosses the store boundary.
const (
	CodeUnknown          = "unknown"
	CodePermissionDenied = "permission-denied"
	CodeUnavailable      = "unavailable"
	CodeDeadlineExceeded = "deadline-exceeded"
	CodeUnauthenticated  = "unauthenticated"
	CodeNotFound         = "not-found"
)

// StoreError wraps a backend failure with one of the store error codes.
type StoreError struct {
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError constructs a StoreError.
func NewStoreError(code string, err error) *StoreError {
	return &StoreError{Code: code, Err: err}
}

// ErrorCode extracts the store error code from err, defaulting to unknown.
func ErrorCode(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// EncodeTime converts a native time into the field representation.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DecodeTime converts a field value written by EncodeTime back into a
// native time.
func DecodeTime(v any) (time.Time, error) {
	switch tv := v.(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return time.Time{}, fmt.Errorf("decode time: %w", err)
		}
		return t, nil
	case time.Time:
		return tv, nil
	default:
		return time.Time{}, fmt.Errorf("decode time: unsupported type %T", v)
	}
}
