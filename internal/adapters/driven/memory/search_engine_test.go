package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

func doc(id, name string, extra map[string]any) domain.SearchDocument {
	d := domain.SearchDocument{
		domain.DocFieldID:         id,
		domain.DocFieldEntityType: "table",
		domain.DocFieldName:       name,
		domain.DocFieldFQN:        "svc.db.s." + name,
		domain.DocFieldDeleted:    false,
	}
	for k, v := range extra {
		d[k] = v
	}
	return d
}

func seeded(t *testing.T) *SearchEngine {
	t.Helper()
	e := NewSearchEngine(nil)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, domain.IndexMapping{IndexName: "table_search_index"}))
	require.NoError(t, e.Upsert(ctx, "table_search_index", "t1", doc("t1", "orders", map[string]any{domain.DocFieldTotalVotes: float64(2)})))
	require.NoError(t, e.Upsert(ctx, "table_search_index", "t2", doc("t2", "orders_archive", map[string]any{domain.DocFieldTotalVotes: float64(9)})))
	require.NoError(t, e.Upsert(ctx, "table_search_index", "t3", doc("t3", "customer_orders", map[string]any{domain.DocFieldDeleted: true})))
	require.NoError(t, e.Upsert(ctx, "topic_search_index", "k1", doc("k1", "payments", nil)))
	return e
}

func TestSearchEngine_Indices(t *testing.T) {
	e := NewSearchEngine(nil)
	ctx := context.Background()

	assert.ErrorIs(t, e.CreateIndex(ctx, domain.IndexMapping{}), domain.ErrInvalidInput)

	m := domain.IndexMapping{IndexName: "table_search_index"}
	require.NoError(t, e.CreateIndex(ctx, m))
	require.NoError(t, e.CreateIndex(ctx, m))
	ok, err := e.IndexExists(ctx, "table_search_index")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, e.UpdateIndex(ctx, domain.IndexMapping{IndexName: "missing"}), domain.ErrNotFound)

	require.NoError(t, e.DeleteIndex(ctx, "table_search_index"))
	ok, err = e.IndexExists(ctx, "table_search_index")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchEngine_DocumentsAreCopied(t *testing.T) {
	e := NewSearchEngine(nil)
	ctx := context.Background()
	d := doc("t1", "orders", nil)
	require.NoError(t, e.Upsert(ctx, "idx", "t1", d))

	d[domain.DocFieldName] = "mutated"
	got, err := e.Get(ctx, "idx", "t1")
	require.NoError(t, err)
	assert.Equal(t, "orders", got[domain.DocFieldName])

	got[domain.DocFieldName] = "mutated again"
	again, err := e.Get(ctx, "idx", "t1")
	require.NoError(t, err)
	assert.Equal(t, "orders", again[domain.DocFieldName])

	_, err = e.Get(ctx, "idx", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchEngine_UpdateAndByQuery(t *testing.T) {
	e := seeded(t)
	ctx := context.Background()
	script := domain.NewScript("describe", domain.SetField(domain.DocFieldDescription, "sales"))

	require.NoError(t, e.Update(ctx, "table_search_index", "t1", script))
	assert.ErrorIs(t, e.Update(ctx, "table_search_index", "nope", script), domain.ErrNotFound)

	q := domain.Query{FQNPrefix: "SVC.DB.S.ORDERS"}
	n, err := e.UpdateByQuery(ctx, []string{"table_search_index", "topic_search_index"}, q, script)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "t1 already carries the description")

	n, err = e.DeleteByQuery(ctx, []string{"table_search_index"}, domain.Query{}.WithDeleted(true))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = e.Get(ctx, "table_search_index", "t3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchEngine_Bulk(t *testing.T) {
	e := seeded(t)
	result, err := e.Bulk(context.Background(), []domain.BulkOp{
		{Action: domain.BulkUpsert, Index: "table_search_index", ID: "t4", Doc: doc("t4", "refunds", nil)},
		{Action: domain.BulkUpsert, Index: "table_search_index", ID: ""},
		{Action: domain.BulkDelete, Index: "table_search_index", ID: "t1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Len(t, result.Failed, 1)
}

func TestSearchEngine_Search(t *testing.T) {
	e := seeded(t)
	ctx := context.Background()
	both := []string{"table_search_index", "topic_search_index"}

	t.Run("match all sorts by index then id", func(t *testing.T) {
		page, err := e.Search(ctx, domain.SearchRequest{Indices: both, Text: "*", Size: 10})
		require.NoError(t, err)
		assert.Equal(t, 4, page.Total)
		var ids []string
		for _, h := range page.Hits {
			ids = append(ids, h.ID)
		}
		assert.Equal(t, []string{"t1", "t2", "t3", "k1"}, ids)
	})

	t.Run("text scoring prefers exact then prefix then contains", func(t *testing.T) {
		page, err := e.Search(ctx, domain.SearchRequest{Indices: both, Text: "Orders", Size: 10})
		require.NoError(t, err)
		require.Len(t, page.Hits, 3)
		assert.Equal(t, "t1", page.Hits[0].ID)
		assert.Equal(t, "t2", page.Hits[1].ID)
		assert.Equal(t, "t3", page.Hits[2].ID)
	})

	t.Run("sort by field and paginate", func(t *testing.T) {
		deleted := false
		page, err := e.Search(ctx, domain.SearchRequest{
			Indices:   []string{"table_search_index"},
			Query:     domain.Query{Deleted: &deleted},
			SortField: domain.DocFieldTotalVotes,
			SortOrder: domain.SortDesc,
			From:      0,
			Size:      1,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		require.Len(t, page.Hits, 1)
		assert.Equal(t, "t2", page.Hits[0].ID)
	})

	t.Run("from past the end", func(t *testing.T) {
		page, err := e.Search(ctx, domain.SearchRequest{Indices: both, From: 50, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, 4, page.Total)
		assert.Empty(t, page.Hits)
	})

	t.Run("invalid pagination", func(t *testing.T) {
		_, err := e.Search(ctx, domain.SearchRequest{Indices: both, From: -1, Size: 10})
		assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	})

	require.NoError(t, e.HealthCheck(ctx))
}
