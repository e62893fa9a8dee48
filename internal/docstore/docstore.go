// Package docstore defines the Metadata Store Adapter (C2): a small
// document-store abstraction backed by modernc.org/sqlite, offering CRUD
// plus the one atomic conditional-update primitive every other core
// component builds its critical sections and reference counting on.
package docstore

import "context"

// Adapter is the Metadata Store Adapter. Every document is a JSON-shaped
// value identified by (collection, id). Implementations must make
// CompareAndSet atomic with respect to concurrent callers on the same
// (collection, id).
type Adapter interface {
	// Load reads the document into out. Returns errclass.ErrNotFound if absent.
	Load(ctx context.Context, collection, id string, out any) error

	// Find returns every document in collection whose fields match filter
	// (equality only), decoded into the slice pointed to by out.
	Find(ctx context.Context, collection string, filter map[string]any, out any) error

	// Save inserts or fully replaces the document at (collection, id).
	Save(ctx context.Context, collection, id string, doc any) error

	// Remove deletes the document at (collection, id). No error if absent.
	Remove(ctx context.Context, collection, id string) error

	// CompareAndSet atomically loads the current document, checks that
	// every field in predicate matches it, and if so replaces it with the
	// result of mutate(current). Returns ok=false (no error) if the
	// predicate did not hold, so callers can retry or surface
	// errclass.ErrBusyTryLater. This is the one primitive every critical
	// section and reference-count update is built on.
	CompareAndSet(ctx context.Context, collection, id string, predicate map[string]any, mutate func(current map[string]any) (map[string]any, error)) (ok bool, err error)
}
