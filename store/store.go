// Package store defines the transactional, key-indexed collection store contract
// consumed by the cascade core. Adapters live in store/memstore and store/gormstore.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

var (
	ErrNotFound             = errors.New("store: document not found")
	ErrConflict             = errors.New("store: document already exists")
	ErrUndeclaredCollection = errors.New("store: collection not declared in transaction scope")
	ErrReadOnly             = errors.New("store: write attempted in read-only transaction")
)

// Document is one raw stored entity.
type Document struct {
	Id   string
	Body json.RawMessage
}

// Tx is the view of the store inside one transaction scope. All operations are
// bound to the context the transaction was opened with.
type Tx interface {
	Context() context.Context
	Get(collection, id string, dest any) error
	// Add inserts and fails with ErrConflict when the id exists.
	Add(collection, id string, doc any) error
	// Put inserts or replaces.
	Put(collection, id string, doc any) error
	// Update shallow-merges patch into the stored document.
	Update(collection, id string, patch map[string]any) error
	Delete(collection, id string) error
	// Query returns the documents matching every predicate, ordered by id.
	Query(collection string, preds ...Predicate) ([]Document, error)
}

// Store opens transactions over an explicit set of collections. Either every
// write made inside fn commits, or none does.
type Store interface {
	Transaction(ctx context.Context, mode Mode, collections []string, fn func(tx Tx) error) error
}

// Get decodes one document into a fresh T.
func Get[T any](tx Tx, collection, id string) (*T, error) {
	var v T
	if err := tx.Get(collection, id, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Query decodes every matching document into T.
func Query[T any](tx Tx, collection string, preds ...Predicate) ([]T, error) {
	docs, err := tx.Query(collection, preds...)
	if err != nil {
		return nil, err
	}
	return Decode[T](docs)
}

func Decode[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Body, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// View runs fn in a read-only transaction.
func View(ctx context.Context, s Store, collections []string, fn func(tx Tx) error) error {
	return s.Transaction(ctx, ReadOnly, collections, fn)
}

// Scope returns the sorted, de-duplicated collection list of a transaction.
func Scope(collections []string) []string {
	seen := make(map[string]struct{}, len(collections))
	out := make([]string, 0, len(collections))
	for _, c := range collections {
		if _, ok := seen[c]; ok || c == "" {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sortStrings(out)
	return out
}
