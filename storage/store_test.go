package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/creamery/driver/drivertest"
)

func TestPostgresStorePutReturnsPublicURL(t *testing.T) {
	pool := drivertest.NewPool().Expect("INSERT INTO objects", drivertest.Result{Tag: "INSERT 0 1"})
	store := NewPostgresStore(pool, "https://cdn.example.com/", zap.NewNop())

	url, err := store.Put(context.Background(), "products/1/image.jpg", "image/jpeg", []byte("jpg"))

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/products/1/image.jpg", url)
}

func TestPostgresStoreDelete(t *testing.T) {
	pool := drivertest.NewPool().
		Expect("DELETE FROM objects WHERE path = $1", drivertest.Result{Tag: "DELETE 1"}).
		Expect("DELETE FROM objects WHERE path = $1", drivertest.Result{Tag: "DELETE 0"})
	store := NewPostgresStore(pool, "https://cdn.example.com", zap.NewNop())

	require.NoError(t, store.Delete(context.Background(), "products/1/image.jpg"))
	assert.ErrorIs(t, store.Delete(context.Background(), "products/1/image.jpg"), ErrObjectNotFound)
}

func TestPostgresStoreURL(t *testing.T) {
	pool := drivertest.NewPool().
		Expect("SELECT EXISTS", drivertest.Result{Rows: [][]any{{true}}}).
		Expect("SELECT EXISTS", drivertest.Result{Rows: [][]any{{false}}})
	store := NewPostgresStore(pool, "https://cdn.example.com", zap.NewNop())

	url, err := store.URL(context.Background(), "products/1/image.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/products/1/image.jpg", url)

	_, err = store.URL(context.Background(), "products/2/image.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestPostgresStorePathOf(t *testing.T) {
	store := NewPostgresStore(drivertest.NewPool(), "https://cdn.example.com/", zap.NewNop())

	path, ok := store.PathOf("https://cdn.example.com/profile_pictures/u-1/me.jpg")
	assert.True(t, ok)
	assert.Equal(t, "profile_pictures/u-1/me.jpg", path)

	_, ok = store.PathOf("https://lh3.googleusercontent.com/a/asha")
	assert.False(t, ok)

	_, ok = store.PathOf("https://cdn.example.com/")
	assert.False(t, ok)
}
