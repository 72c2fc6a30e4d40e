// Package memstore is an in-process implementation of store.Store used by the
// CLI in development mode and by tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"bitbucket.org/mmdatafocus/ops_backend/store"
)

type Store struct {
	dataMu sync.RWMutex
	data   map[string]map[string][]byte

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex

	// FailCommit, when set, runs after fn succeeds and before writes are applied.
	// A non-nil error aborts the transaction as a store-level failure.
	FailCommit func(collections []string) error
}

func New() *Store {
	return &Store{
		data:  map[string]map[string][]byte{},
		locks: map[string]*sync.RWMutex{},
	}
}

func (s *Store) lockFor(collection string) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[collection] = l
	}
	return l
}

// Transaction acquires collection locks in sorted order so overlapping write
// scopes serialize without deadlocking. Transactions must not be nested.
func (s *Store) Transaction(ctx context.Context, mode store.Mode, collections []string, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scope := store.Scope(collections)
	for _, c := range scope {
		l := s.lockFor(c)
		if mode == store.ReadWrite {
			l.Lock()
			defer l.Unlock()
		} else {
			l.RLock()
			defer l.RUnlock()
		}
	}

	tx := &memTx{
		ctx:    ctx,
		store:  s,
		mode:   mode,
		scope:  make(map[string]struct{}, len(scope)),
		writes: map[string]map[string][]byte{},
	}
	for _, c := range scope {
		tx.scope[c] = struct{}{}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if mode == store.ReadOnly || len(tx.writes) == 0 {
		return nil
	}
	if s.FailCommit != nil {
		if err := s.FailCommit(scope); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.apply(tx.writes)
	return nil
}

func (s *Store) apply(writes map[string]map[string][]byte) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	for coll, docs := range writes {
		target, ok := s.data[coll]
		if !ok {
			target = map[string][]byte{}
			s.data[coll] = target
		}
		for id, body := range docs {
			if body == nil {
				delete(target, id)
				continue
			}
			target[id] = body
		}
	}
}

func (s *Store) read(collection, id string) ([]byte, bool) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	body, ok := s.data[collection][id]
	return body, ok
}

func (s *Store) snapshot(collection string) map[string][]byte {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	out := make(map[string][]byte, len(s.data[collection]))
	for id, body := range s.data[collection] {
		out[id] = body
	}
	return out
}

// Len reports the committed number of documents in a collection.
func (s *Store) Len(collection string) int {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return len(s.data[collection])
}

type memTx struct {
	ctx   context.Context
	store *Store
	mode  store.Mode
	scope map[string]struct{}
	// writes overlays committed data; a nil body marks a delete.
	writes map[string]map[string][]byte
}

func (t *memTx) Context() context.Context { return t.ctx }

func (t *memTx) check(collection string, write bool) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.scope[collection]; !ok {
		return fmt.Errorf("%w: %s", store.ErrUndeclaredCollection, collection)
	}
	if write && t.mode != store.ReadWrite {
		return store.ErrReadOnly
	}
	return nil
}

func (t *memTx) raw(collection, id string) ([]byte, bool) {
	if docs, ok := t.writes[collection]; ok {
		if body, ok := docs[id]; ok {
			return body, body != nil
		}
	}
	return t.store.read(collection, id)
}

func (t *memTx) set(collection, id string, body []byte) {
	docs, ok := t.writes[collection]
	if !ok {
		docs = map[string][]byte{}
		t.writes[collection] = docs
	}
	docs[id] = body
}

func (t *memTx) Get(collection, id string, dest any) error {
	if err := t.check(collection, false); err != nil {
		return err
	}
	body, ok := t.raw(collection, id)
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(body, dest)
}

func (t *memTx) Add(collection, id string, doc any) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	if _, exists := t.raw(collection, id); exists {
		return fmt.Errorf("%w: %s/%s", store.ErrConflict, collection, id)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	t.set(collection, id, body)
	return nil
}

func (t *memTx) Put(collection, id string, doc any) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	t.set(collection, id, body)
	return nil
}

func (t *memTx) Update(collection, id string, patch map[string]any) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	body, ok := t.raw(collection, id)
	if !ok {
		return store.ErrNotFound
	}
	merged, err := store.ApplyPatch(body, patch)
	if err != nil {
		return err
	}
	t.set(collection, id, merged)
	return nil
}

func (t *memTx) Delete(collection, id string) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	if _, ok := t.raw(collection, id); !ok {
		return nil
	}
	t.set(collection, id, nil)
	return nil
}

func (t *memTx) Query(collection string, preds ...store.Predicate) ([]store.Document, error) {
	if err := t.check(collection, false); err != nil {
		return nil, err
	}
	merged := t.store.snapshot(collection)
	for id, body := range t.writes[collection] {
		if body == nil {
			delete(merged, id)
			continue
		}
		merged[id] = body
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []store.Document
	for _, id := range ids {
		ok, err := store.Match(merged[id], preds)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, store.Document{Id: id, Body: append(json.RawMessage(nil), merged[id]...)})
		}
	}
	return out, nil
}
