// Package batch runs chunked bulk writes over the store. Each chunk is its own
// transaction, so a batch is chunk-atomic only; pass ChunkSize = len(items)
// for whole-batch atomicity.
package batch

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

const DefaultChunkSize = 100

type Granularity int

const (
	// ItemLevel records a failing item and keeps the rest of its chunk.
	ItemLevel Granularity = iota
	// ChunkLevel aborts the chunk transaction on the first failing item.
	ChunkLevel
)

type Options struct {
	ChunkSize   int
	Granularity Granularity
	// OnProgress is called after every chunk with the number of items handled so far.
	OnProgress func(done, total int)
	// OnError is called once per item or chunk failure.
	OnError func(err error)
}

// ChunkError means the chunk transaction itself failed; every item in it is
// counted failed.
type ChunkError struct {
	Chunk int
	Ids   []string
	Err   error
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (%d items): %v", e.Chunk, len(e.Ids), e.Err)
}

func (e ChunkError) Unwrap() error { return e.Err }

// ItemError means one item failed inside a chunk that still committed.
type ItemError struct {
	Index int
	Id    string
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.Id, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Result reports the two failure classes separately. Partial failure is never
// returned as an error.
type Result struct {
	Success     int
	Failed      int
	ChunkErrors []ChunkError
	ItemErrors  []ItemError
}

func (r Result) Errors() []error {
	out := make([]error, 0, len(r.ChunkErrors)+len(r.ItemErrors))
	for _, e := range r.ChunkErrors {
		out = append(out, e)
	}
	for _, e := range r.ItemErrors {
		out = append(out, e)
	}
	return out
}

// Patch is one partial update for Update.
type Patch struct {
	Id     string
	Fields map[string]any
}

func Insert[T any](ctx context.Context, s store.Store, collection string, items []T, idOf func(T) string, opts Options) Result {
	return run(ctx, s, "insert", collection, ids(items, idOf), opts, func(tx store.Tx, i int) error {
		return tx.Add(collection, idOf(items[i]), items[i])
	})
}

func Upsert[T any](ctx context.Context, s store.Store, collection string, items []T, idOf func(T) string, opts Options) Result {
	return run(ctx, s, "upsert", collection, ids(items, idOf), opts, func(tx store.Tx, i int) error {
		return tx.Put(collection, idOf(items[i]), items[i])
	})
}

func Update(ctx context.Context, s store.Store, collection string, patches []Patch, opts Options) Result {
	return run(ctx, s, "update", collection, ids(patches, func(p Patch) string { return p.Id }), opts, func(tx store.Tx, i int) error {
		err := tx.Update(collection, patches[i].Id, patches[i].Fields)
		if errors.Is(err, store.ErrNotFound) {
			return utils.NewNotFoundError(collection, patches[i].Id)
		}
		return err
	})
}

func Delete(ctx context.Context, s store.Store, collection string, idList []string, opts Options) Result {
	return run(ctx, s, "delete", collection, idList, opts, func(tx store.Tx, i int) error {
		return tx.Delete(collection, idList[i])
	})
}

func ids[T any](items []T, idOf func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = idOf(it)
	}
	return out
}

func run(ctx context.Context, s store.Store, op, collection string, idList []string, opts Options, write func(tx store.Tx, i int) error) Result {
	var res Result
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	total := len(idList)

	for chunk, start := 0, 0; start < total; chunk, start = chunk+1, start+size {
		end := min(start+size, total)
		var itemErrs []ItemError

		err := s.Transaction(ctx, store.ReadWrite, []string{collection}, func(tx store.Tx) error {
			itemErrs = itemErrs[:0]
			for i := start; i < end; i++ {
				if err := write(tx, i); err != nil {
					if opts.Granularity == ChunkLevel {
						return fmt.Errorf("item %s: %w", idList[i], err)
					}
					itemErrs = append(itemErrs, ItemError{Index: i, Id: idList[i], Err: err})
				}
			}
			return nil
		})

		if err != nil {
			ce := ChunkError{Chunk: chunk, Ids: append([]string(nil), idList[start:end]...), Err: &utils.TransactionError{Op: op, Err: err}}
			res.ChunkErrors = append(res.ChunkErrors, ce)
			res.Failed += end - start
			batchItemsFailed.WithLabelValues(op, collection, "chunk").Add(float64(end - start))
			if opts.OnError != nil {
				opts.OnError(ce)
			}
		} else {
			res.Success += end - start - len(itemErrs)
			res.Failed += len(itemErrs)
			res.ItemErrors = append(res.ItemErrors, itemErrs...)
			batchItemsProcessed.WithLabelValues(op, collection).Add(float64(end - start - len(itemErrs)))
			if len(itemErrs) > 0 {
				batchItemsFailed.WithLabelValues(op, collection, "item").Add(float64(len(itemErrs)))
			}
			if opts.OnError != nil {
				for _, ie := range itemErrs {
					opts.OnError(ie)
				}
			}
		}
		if opts.OnProgress != nil {
			opts.OnProgress(end, total)
		}
		if ctx.Err() != nil {
			remaining := total - end
			if remaining > 0 {
				ce := ChunkError{Chunk: chunk + 1, Ids: append([]string(nil), idList[end:]...), Err: ctx.Err()}
				res.ChunkErrors = append(res.ChunkErrors, ce)
				res.Failed += remaining
			}
			break
		}
	}
	return res
}
