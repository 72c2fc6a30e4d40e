package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/mmdatafocus/ops_backend/store"
	"bitbucket.org/mmdatafocus/ops_backend/store/memstore"
	"bitbucket.org/mmdatafocus/ops_backend/utils"
)

type widget struct {
	Id    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Group string  `json:"group"`
}

func widgetId(w widget) string { return w.Id }

// widgets builds n items; every k-th one carries a NaN, which cannot be encoded.
func widgets(n, k int) []widget {
	out := make([]widget, n)
	for i := range out {
		out[i] = widget{Id: fmt.Sprintf("w%03d", i), Name: fmt.Sprintf("widget %d", i), Score: float64(i), Group: fmt.Sprintf("g%d", i%3)}
		if k > 0 && i%k == k-1 {
			out[i].Score = math.NaN()
		}
	}
	return out
}

func TestInsertChunkLevelFailsWholeChunk(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	items := widgets(30, 10)

	res := Insert(ctx, s, "widgets", items, widgetId, Options{ChunkSize: 10, Granularity: ChunkLevel})

	assert.Len(t, res.ChunkErrors, 3)
	assert.Empty(t, res.ItemErrors)
	assert.Equal(t, 30, res.Failed)
	assert.Equal(t, 0, res.Success)
	assert.Equal(t, 0, s.Len("widgets"))
	for _, ce := range res.ChunkErrors {
		assert.True(t, utils.IsTransaction(ce))
		assert.Len(t, ce.Ids, 10)
	}
}

func TestInsertItemLevelFailsOnlyMalformed(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	items := widgets(30, 10)

	var progress []int
	var reported int
	res := Insert(ctx, s, "widgets", items, widgetId, Options{
		ChunkSize:  10,
		OnProgress: func(done, _ int) { progress = append(progress, done) },
		OnError:    func(error) { reported++ },
	})

	assert.Len(t, res.ItemErrors, 3)
	assert.Empty(t, res.ChunkErrors)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 27, res.Success)
	assert.Equal(t, 27, s.Len("widgets"))
	assert.Equal(t, []int{10, 20, 30}, progress)
	assert.Equal(t, 3, reported)
	assert.Equal(t, "w009", res.ItemErrors[0].Id)
}

func TestInsertCommitFailureIsChunkError(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	calls := 0
	s.FailCommit = func([]string) error {
		calls++
		if calls == 2 {
			return errors.New("deadlock")
		}
		return nil
	}

	res := Insert(ctx, s, "widgets", widgets(25, 0), widgetId, Options{ChunkSize: 10})

	require.Len(t, res.ChunkErrors, 1)
	assert.Equal(t, 1, res.ChunkErrors[0].Chunk)
	assert.Equal(t, 10, res.Failed)
	assert.Equal(t, 15, res.Success)
	assert.Equal(t, 15, s.Len("widgets"))
}

func TestInsertDuplicateIsItemError(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	items := widgets(3, 0)
	require.Equal(t, 3, Insert(ctx, s, "widgets", items, widgetId, Options{}).Success)

	res := Insert(ctx, s, "widgets", items[:1], widgetId, Options{})
	require.Len(t, res.ItemErrors, 1)
	assert.ErrorIs(t, res.ItemErrors[0], store.ErrConflict)
}

func TestUpsertUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	items := widgets(5, 0)

	assert.Equal(t, 5, Upsert(ctx, s, "widgets", items, widgetId, Options{ChunkSize: 2}).Success)
	assert.Equal(t, 5, Upsert(ctx, s, "widgets", items, widgetId, Options{ChunkSize: 2}).Success)

	res := Update(ctx, s, "widgets", []Patch{
		{Id: "w000", Fields: map[string]any{"name": "renamed"}},
		{Id: "missing", Fields: map[string]any{"name": "x"}},
	}, Options{})
	assert.Equal(t, 1, res.Success)
	require.Len(t, res.ItemErrors, 1)
	assert.True(t, utils.IsNotFound(res.ItemErrors[0]))

	got, err := GetByIds[widget](ctx, s, "widgets", []string{"w000", "nope", "w004"}, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "renamed", got[0].Name)
	assert.Equal(t, 4.0, got[1].Score)

	del := Delete(ctx, s, "widgets", []string{"w000", "w001", "gone"}, Options{})
	assert.Equal(t, 3, del.Success)
	assert.Equal(t, 3, s.Len("widgets"))
}

func TestPaginate(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	Insert(ctx, s, "widgets", widgets(7, 0), widgetId, Options{})

	page, err := Paginate[widget](ctx, s, "widgets", nil, PageRequest{Page: 1, PageSize: 3, SortBy: "score", SortOrder: Desc})
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrevious)
	require.Len(t, page.Items, 3)
	assert.Equal(t, 6.0, page.Items[0].Score)

	last, err := Paginate[widget](ctx, s, "widgets", nil, PageRequest{Page: 3, PageSize: 3, SortBy: "score"})
	require.NoError(t, err)
	assert.False(t, last.HasNext)
	assert.True(t, last.HasPrevious)
	require.Len(t, last.Items, 1)
	assert.Equal(t, 6.0, last.Items[0].Score)

	beyond, err := Paginate[widget](ctx, s, "widgets", nil, PageRequest{Page: 9, PageSize: 3})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
}

func TestReadHelpers(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	Insert(ctx, s, "widgets", widgets(6, 0), widgetId, Options{})

	n, err := CountWhere(ctx, s, "widgets", store.Eq("group", "g1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := Exists(ctx, s, "widgets", store.Gt("score", 4))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Exists(ctx, s, "widgets", store.Gt("score", 100))
	require.NoError(t, err)
	assert.False(t, ok)

	groups, err := GetDistinctValues(ctx, s, "widgets", "group")
	require.NoError(t, err)
	assert.Equal(t, []any{"g0", "g1", "g2"}, groups)
}
