// Package gormstore backs store.Store with a single MySQL document table.
package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/ops_backend/store"
)

// Document is one row of the documents table.
type Document struct {
	Collection string    `gorm:"primaryKey;size:64"`
	Id         string    `gorm:"primaryKey;size:128"`
	Body       string    `gorm:"type:json;not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (Document) TableName() string { return "documents" }

// CollectionLock has one row per collection. Read-write transactions lock the
// rows of their declared collections, in name order, before touching any data.
type CollectionLock struct {
	Collection string `gorm:"primaryKey;size:64"`
}

func (CollectionLock) TableName() string { return "collection_locks" }

type Store struct {
	DB *gorm.DB

	known sync.Map
}

func New(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(&Document{}, &CollectionLock{})
}

// Transaction runs fn in one database transaction. Read-write transactions
// over overlapping collections are serialized through collection_locks.
func (s *Store) Transaction(ctx context.Context, mode store.Mode, collections []string, fn func(tx store.Tx) error) error {
	scope := store.Scope(collections)
	if mode == store.ReadWrite {
		if err := s.ensureLockRows(ctx, scope); err != nil {
			return err
		}
	}
	opts := &sql.TxOptions{ReadOnly: mode == store.ReadOnly}
	return s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if mode == store.ReadWrite && len(scope) > 0 {
			var locked []string
			if err := db.Raw("SELECT collection FROM collection_locks WHERE collection IN ? ORDER BY collection FOR UPDATE", scope).
				Scan(&locked).Error; err != nil {
				return fmt.Errorf("lock collections: %w", err)
			}
		}
		tx := &gormTx{ctx: ctx, db: db, mode: mode, scope: make(map[string]struct{}, len(scope))}
		for _, c := range scope {
			tx.scope[c] = struct{}{}
		}
		return fn(tx)
	}, opts)
}

// ensureLockRows creates missing collection_locks rows outside the transaction,
// so the locking SELECT always has a row to lock.
func (s *Store) ensureLockRows(ctx context.Context, scope []string) error {
	var missing []string
	for _, c := range scope {
		if _, ok := s.known.Load(c); !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	placeholders := make([]string, len(missing))
	args := make([]any, len(missing))
	for i, c := range missing {
		placeholders[i] = "(?)"
		args[i] = c
	}
	stmt := "INSERT IGNORE INTO collection_locks (collection) VALUES " + strings.Join(placeholders, ", ")
	if err := s.DB.WithContext(ctx).Exec(stmt, args...).Error; err != nil {
		return fmt.Errorf("ensure collection locks: %w", err)
	}
	for _, c := range missing {
		s.known.Store(c, struct{}{})
	}
	return nil
}

type gormTx struct {
	ctx   context.Context
	db    *gorm.DB
	mode  store.Mode
	scope map[string]struct{}
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func (t *gormTx) Context() context.Context { return t.ctx }

func (t *gormTx) check(collection string, write bool) error {
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

func (t *gormTx) raw(collection, id string) ([]byte, error) {
	var d Document
	err := t.db.Where("collection = ? AND id = ?", collection, id).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(d.Body), nil
}

func (t *gormTx) Get(collection, id string, dest any) error {
	if err := t.check(collection, false); err != nil {
		return err
	}
	body, err := t.raw(collection, id)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

func (t *gormTx) Add(collection, id string, doc any) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	err = t.db.Create(&Document{Collection: collection, Id: id, Body: string(body)}).Error
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %s/%s", store.ErrConflict, collection, id)
	}
	return err
}

func (t *gormTx) Put(collection, id string, doc any) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&Document{Collection: collection, Id: id, Body: string(body)}).Error
}

func (t *gormTx) Update(collection, id string, patch map[string]any) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	body, err := t.raw(collection, id)
	if err != nil {
		return err
	}
	merged, err := store.ApplyPatch(body, patch)
	if err != nil {
		return err
	}
	return t.db.Model(&Document{}).
		Where("collection = ? AND id = ?", collection, id).
		Update("body", string(merged)).Error
}

func (t *gormTx) Delete(collection, id string) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	return t.db.Where("collection = ? AND id = ?", collection, id).Delete(&Document{}).Error
}

// Query pushes string and boolean equality predicates into SQL and re-checks the
// full predicate set in Go, since numeric and time encodings differ between
// JSON_EXTRACT and the Go values.
func (t *gormTx) Query(collection string, preds ...store.Predicate) ([]store.Document, error) {
	if err := t.check(collection, false); err != nil {
		return nil, err
	}
	q := t.db.Model(&Document{}).Where("collection = ?", collection)
	for _, p := range preds {
		if !fieldPattern.MatchString(p.Field) {
			return nil, fmt.Errorf("invalid predicate field %q", p.Field)
		}
		if p.Op != store.OpEq {
			continue
		}
		if sqlValue, ok := pushdownValue(p.Value); ok {
			q = q.Where("JSON_UNQUOTE(JSON_EXTRACT(body, ?)) = ?", "$."+p.Field, sqlValue)
		}
	}
	var rows []Document
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]store.Document, 0, len(rows))
	for _, r := range rows {
		ok, err := store.Match([]byte(r.Body), preds)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, store.Document{Id: r.Id, Body: json.RawMessage(r.Body)})
		}
	}
	return out, nil
}

func pushdownValue(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		s := rv.String()
		if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return "", false
		}
		return s, true
	case reflect.Bool:
		if rv.Bool() {
			return "true", true
		}
		return "false", true
	}
	return "", false
}
