package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/creamery/driver"
	"goflare.io/creamery/driver/drivertest"
	"goflare.io/creamery/models"
)

var stockedAt = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func productRow(id, name string, price float64) []any {
	return []any{id, name, "", price, "Classic", "", true, 10, []byte(`{"flavor":"vanilla"}`), stockedAt, stockedAt}
}

// cachedRepository returns a repository whose cache already holds the given products.
func cachedRepository(t *testing.T, pool *drivertest.Pool, ids ...string) (Repository, *drivertest.Redis) {
	t.Helper()
	redis := drivertest.NewRedis()
	cache := driver.NewCache(redis, "creamery:", 0)
	for _, id := range ids {
		require.NoError(t, cache.Set(context.Background(), productCacheKey(id), models.Product{ID: id}))
	}
	return NewRepository(pool, cache, zap.NewNop()), redis
}

func TestRepositoryGetCachesProduct(t *testing.T) {
	pool := drivertest.NewPool().
		Expect("FROM products WHERE id = $1", drivertest.Result{Rows: [][]any{productRow("1", "Vanilla Ice Cream", 120)}})
	repo, redis := cachedRepository(t, pool)

	p, err := repo.Get(context.Background(), nil, "1")
	require.NoError(t, err)
	assert.Equal(t, "Vanilla Ice Cream", p.Name)
	assert.Equal(t, map[string]any{"flavor": "vanilla"}, p.Attributes)
	assert.True(t, redis.Has("creamery:product:1"))

	_, err = repo.Get(context.Background(), nil, "1")
	require.NoError(t, err)
	assert.Len(t, pool.Calls(), 1)
}

func TestRepositoryUpdateFieldsInvalidatesCache(t *testing.T) {
	pool := drivertest.NewPool().
		Expect("UPDATE products SET", drivertest.Result{Rows: [][]any{productRow("1", "Vanilla Ice Cream", 135)}})
	repo, redis := cachedRepository(t, pool, "1", "2")

	price := 135.0
	p, err := repo.UpdateFields(context.Background(), nil, "1", models.ProductFields{Price: &price}, stockedAt)

	require.NoError(t, err)
	assert.Equal(t, 135.0, p.Price)
	assert.False(t, redis.Has("creamery:product:1"))
	assert.True(t, redis.Has("creamery:product:2"))
}

func TestRepositoryUpdateFieldsUnknownKeepsCache(t *testing.T) {
	pool := drivertest.NewPool().Expect("UPDATE products SET", drivertest.Result{})
	repo, redis := cachedRepository(t, pool, "9")

	stock := 0
	_, err := repo.UpdateFields(context.Background(), nil, "9", models.ProductFields{Stock: &stock}, stockedAt)

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.True(t, redis.Has("creamery:product:9"))
}

func TestRepositorySetAllStockInvalidatesEveryProduct(t *testing.T) {
	pool := drivertest.NewPool().
		Expect("UPDATE products SET stock = $1, in_stock = $2, updated_at = $3 RETURNING id",
			drivertest.Result{Rows: [][]any{{"1"}, {"2"}}})
	repo, redis := cachedRepository(t, pool, "1", "2")

	require.NoError(t, repo.SetAllStock(context.Background(), nil, 0, stockedAt))

	assert.False(t, redis.Has("creamery:product:1"))
	assert.False(t, redis.Has("creamery:product:2"))
	assert.Equal(t, []any{0, false, stockedAt}, pool.Calls()[0].Args)
}

func TestRepositoryDeleteInvalidatesCache(t *testing.T) {
	pool := drivertest.NewPool().
		Expect("DELETE FROM products WHERE id = $1", drivertest.Result{Tag: "DELETE 1"})
	repo, redis := cachedRepository(t, pool, "1")

	require.NoError(t, repo.Delete(context.Background(), nil, "1"))
	assert.False(t, redis.Has("creamery:product:1"))
}

func TestRepositoryDeleteUnknown(t *testing.T) {
	pool := drivertest.NewPool().
		Expect("DELETE FROM products WHERE id = $1", drivertest.Result{Tag: "DELETE 0"})
	repo, _ := cachedRepository(t, pool)

	err := repo.Delete(context.Background(), nil, "9")

	assert.ErrorIs(t, err, ErrProductNotFound)
}
