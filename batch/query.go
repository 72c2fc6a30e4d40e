package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/ops_backend/store"
)

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

type PageRequest struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder SortOrder
}

type Page[T any] struct {
	Items       []T
	Total       int
	Page        int
	PageSize    int
	TotalPages  int
	HasNext     bool
	HasPrevious bool
}

// Paginate sorts the matching documents before slicing out the requested page.
// Pages are 1-based.
func Paginate[T any](ctx context.Context, s store.Store, collection string, preds []store.Predicate, req PageRequest) (Page[T], error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	var docs []store.Document
	err := store.View(ctx, s, []string{collection}, func(tx store.Tx) error {
		var err error
		docs, err = tx.Query(collection, preds...)
		return err
	})
	if err != nil {
		return Page[T]{}, err
	}
	if req.SortBy != "" {
		store.SortDocuments(docs, req.SortBy, req.SortOrder == Desc)
	}

	total := len(docs)
	totalPages := (total + req.PageSize - 1) / req.PageSize
	start := min((req.Page-1)*req.PageSize, total)
	end := min(start+req.PageSize, total)

	items, err := store.Decode[T](docs[start:end])
	if err != nil {
		return Page[T]{}, err
	}
	return Page[T]{
		Items:       items,
		Total:       total,
		Page:        req.Page,
		PageSize:    req.PageSize,
		TotalPages:  totalPages,
		HasNext:     req.Page*req.PageSize < total,
		HasPrevious: req.Page > 1,
	}, nil
}

// GetByIds looks ids up chunk by chunk to bound memory; missing ids are skipped.
func GetByIds[T any](ctx context.Context, s store.Store, collection string, idList []string, chunkSize int) ([]T, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	out := make([]T, 0, len(idList))
	for start := 0; start < len(idList); start += chunkSize {
		end := min(start+chunkSize, len(idList))
		err := store.View(ctx, s, []string{collection}, func(tx store.Tx) error {
			for _, id := range idList[start:end] {
				v, err := store.Get[T](tx, collection, id)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				out = append(out, *v)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func CountWhere(ctx context.Context, s store.Store, collection string, preds ...store.Predicate) (int, error) {
	n := 0
	err := store.View(ctx, s, []string{collection}, func(tx store.Tx) error {
		docs, err := tx.Query(collection, preds...)
		n = len(docs)
		return err
	})
	return n, err
}

func Exists(ctx context.Context, s store.Store, collection string, preds ...store.Predicate) (bool, error) {
	n, err := CountWhere(ctx, s, collection, preds...)
	return n > 0, err
}

// GetDistinctValues returns the sorted distinct values of a top-level field.
func GetDistinctValues(ctx context.Context, s store.Store, collection, field string, preds ...store.Predicate) ([]any, error) {
	var docs []store.Document
	err := store.View(ctx, s, []string{collection}, func(tx store.Tx) error {
		var err error
		docs, err = tx.Query(collection, preds...)
		return err
	})
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []any
	for _, d := range docs {
		v, ok := store.Extract(d.Body, field)
		if !ok || v == nil {
			continue
		}
		key := fmt.Sprintf("%T:%v", v, v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		c, ok := store.Compare(out[i], out[j])
		return ok && c < 0
	})
	return out, nil
}
