package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/ops_backend/store"
)

type item struct {
	Id     string    `json:"id"`
	Status string    `json:"status"`
	Qty    float64   `json:"qty"`
	At     time.Time `json:"at"`
}

var day = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, items ...item) {
	t.Helper()
	require.NoError(t, s.Transaction(context.Background(), store.ReadWrite, []string{"items"}, func(tx store.Tx) error {
		for _, it := range items {
			if err := tx.Put("items", it.Id, it); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestFailedTransactionCommitsNothing(t *testing.T) {
	s := New()
	seed(t, s, item{Id: "a", Qty: 1})

	boom := errors.New("boom")
	err := s.Transaction(context.Background(), store.ReadWrite, []string{"items"}, func(tx store.Tx) error {
		require.NoError(t, tx.Put("items", "b", item{Id: "b"}))
		require.NoError(t, tx.Update("items", "a", map[string]any{"qty": 5}))
		// writes are visible inside the transaction
		got, err := store.Get[item](tx, "items", "a")
		require.NoError(t, err)
		assert.Equal(t, 5.0, got.Qty)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Len("items"))

	require.NoError(t, store.View(context.Background(), s, []string{"items"}, func(tx store.Tx) error {
		got, err := store.Get[item](tx, "items", "a")
		require.NoError(t, err)
		assert.Equal(t, 1.0, got.Qty)
		return nil
	}))
}

func TestAddConflictsAndScopeChecks(t *testing.T) {
	s := New()
	seed(t, s, item{Id: "a"})
	ctx := context.Background()

	err := s.Transaction(ctx, store.ReadWrite, []string{"items"}, func(tx store.Tx) error {
		return tx.Add("items", "a", item{Id: "a"})
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = s.Transaction(ctx, store.ReadWrite, []string{"items"}, func(tx store.Tx) error {
		return tx.Put("other", "x", item{Id: "x"})
	})
	assert.ErrorIs(t, err, store.ErrUndeclaredCollection)

	err = store.View(ctx, s, []string{"items"}, func(tx store.Tx) error {
		return tx.Delete("items", "a")
	})
	assert.ErrorIs(t, err, store.ErrReadOnly)

	err = store.View(ctx, s, []string{"items"}, func(tx store.Tx) error {
		var v item
		return tx.Get("items", "missing", &v)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueryFiltersAndOrdersById(t *testing.T) {
	s := New()
	seed(t, s,
		item{Id: "c", Status: "open", Qty: 3, At: day.Add(2 * time.Hour)},
		item{Id: "a", Status: "open", Qty: 1, At: day},
		item{Id: "b", Status: "closed", Qty: 2, At: day.Add(time.Hour)},
		item{Id: "d", Status: "open", Qty: 9, At: day.AddDate(0, 0, 1)},
	)
	require.NoError(t, store.View(context.Background(), s, []string{"items"}, func(tx store.Tx) error {
		got, err := store.Query[item](tx, "items", store.Eq("status", "open"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "d"}, ids(got))

		got, err = store.Query[item](tx, "items", store.Between("at", day, day.AddDate(0, 0, 1))...)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids(got))

		got, err = store.Query[item](tx, "items", store.Gt("qty", 1), store.In("status", "closed", "gone"))
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(got))
		return nil
	}))

	require.NoError(t, s.Transaction(context.Background(), store.ReadWrite, []string{"items"}, func(tx store.Tx) error {
		require.NoError(t, tx.Delete("items", "a"))
		got, err := store.Query[item](tx, "items", store.Eq("status", "open"))
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, ids(got))
		return nil
	}))
	assert.Equal(t, 3, s.Len("items"))
}

func TestFailCommitAndCancelledContext(t *testing.T) {
	s := New()
	s.FailCommit = func([]string) error { return errors.New("disk full") }
	err := s.Transaction(context.Background(), store.ReadWrite, []string{"items"}, func(tx store.Tx) error {
		return tx.Put("items", "a", item{Id: "a"})
	})
	require.Error(t, err)
	assert.Zero(t, s.Len("items"))

	s.FailCommit = nil
	ctx, cancel := context.WithCancel(context.Background())
	err = s.Transaction(ctx, store.ReadWrite, []string{"items"}, func(tx store.Tx) error {
		if err := tx.Put("items", "a", item{Id: "a"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Len("items"))
}

func TestConcurrentWritersSerialize(t *testing.T) {
	s := New()
	seed(t, s, item{Id: "counter"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Transaction(context.Background(), store.ReadWrite, []string{"items"}, func(tx store.Tx) error {
				cur, err := store.Get[item](tx, "items", "counter")
				if err != nil {
					return err
				}
				return tx.Update("items", "counter", map[string]any{"qty": cur.Qty + 1})
			})
		}()
	}
	wg.Wait()

	require.NoError(t, store.View(context.Background(), s, []string{"items"}, func(tx store.Tx) error {
		cur, err := store.Get[item](tx, "items", "counter")
		require.NoError(t, err)
		assert.Equal(t, 20.0, cur.Qty)
		return nil
	}))
}

func ids(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Id
	}
	return out
}
