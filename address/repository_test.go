package address

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/creamery/driver/drivertest"
	"goflare.io/creamery/models"
)

const (
	lockSQL    = "SELECT pg_advisory_xact_lock(hashtext($1))"
	countSQL   = "SELECT count(*) FROM addresses WHERE user_id = $1"
	clearSQL   = "UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default"
	insertSQL  = "INSERT INTO addresses"
	setSQL     = "UPDATE addresses SET is_default = TRUE WHERE user_id = $1 AND id = $2"
	deleteSQL  = "DELETE FROM addresses WHERE user_id = $1 AND id = $2 RETURNING is_default"
	promoteSQL = "WHERE id = (SELECT id FROM addresses WHERE user_id = $1 ORDER BY created_at LIMIT 1)"
	updateSQL  = "SET name = $3, phone = $4, street = $5, city = $6, state = $7, pin = $8, is_default = is_default OR $9"
)

func newAddress(id string, isDefault bool) *models.Address {
	return &models.Address{
		ID:        id,
		UserID:    "u-1",
		Name:      "Asha Rao",
		Phone:     "9876543210",
		Street:    "12 MG Road",
		City:      "Bengaluru",
		State:     "Karnataka",
		Pin:       "560001",
		IsDefault: isDefault,
		CreatedAt: time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
	}
}

func begin(t *testing.T, pool *drivertest.Pool) *drivertest.Tx {
	t.Helper()
	tx, err := pool.BeginTx(context.Background(), pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	require.NoError(t, err)
	return tx.(*drivertest.Tx)
}

func TestAdd_FirstAddressBecomesDefault(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(countSQL, drivertest.Result{Rows: [][]any{{0}}}).
		Expect(insertSQL, drivertest.Result{Tag: "INSERT 0 1"})
	repo := NewRepository(pool, zap.NewNop())

	a := newAddress("addr-1", false)
	require.NoError(t, repo.Add(context.Background(), begin(t, pool), a))

	assert.True(t, a.IsDefault)
	calls := pool.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, true, calls[2].Args[8])
	assert.Empty(t, pool.Pending())
}

func TestAdd_DefaultClearsOthers(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(countSQL, drivertest.Result{Rows: [][]any{{2}}}).
		Expect(clearSQL, drivertest.Result{Tag: "UPDATE 1"}).
		Expect(insertSQL, drivertest.Result{Tag: "INSERT 0 1"})
	repo := NewRepository(pool, zap.NewNop())

	require.NoError(t, repo.Add(context.Background(), begin(t, pool), newAddress("addr-3", true)))

	calls := pool.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, true, calls[3].Args[8])
	assert.Empty(t, pool.Pending())
}

func TestAdd_NonDefaultLeavesOthers(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(countSQL, drivertest.Result{Rows: [][]any{{1}}}).
		Expect(insertSQL, drivertest.Result{Tag: "INSERT 0 1"})
	repo := NewRepository(pool, zap.NewNop())

	a := newAddress("addr-2", false)
	require.NoError(t, repo.Add(context.Background(), begin(t, pool), a))

	assert.False(t, a.IsDefault)
	assert.Equal(t, false, pool.Calls()[2].Args[8])
}

func TestAdd_LocksUserBeforeCounting(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(countSQL, drivertest.Result{Rows: [][]any{{0}}}).
		Expect(insertSQL, drivertest.Result{Tag: "INSERT 0 1"})
	repo := NewRepository(pool, zap.NewNop())

	require.NoError(t, repo.Add(context.Background(), begin(t, pool), newAddress("addr-1", false)))

	calls := pool.Calls()
	assert.Equal(t, []any{"addresses:u-1"}, calls[0].Args)
	for _, c := range calls {
		assert.True(t, c.InTx, c.SQL)
	}
}

func TestSetDefault_LeavesOneDefault(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(clearSQL, drivertest.Result{Tag: "UPDATE 1"}).
		Expect(setSQL, drivertest.Result{Tag: "UPDATE 1"})
	repo := NewRepository(pool, zap.NewNop())

	require.NoError(t, repo.SetDefault(context.Background(), begin(t, pool), "u-1", "addr-2"))

	calls := pool.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []any{"u-1", "addr-2"}, calls[2].Args)
}

func TestSetDefault_Unknown(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(clearSQL, drivertest.Result{Tag: "UPDATE 1"}).
		Expect(setSQL, drivertest.Result{Tag: "UPDATE 0"})
	repo := NewRepository(pool, zap.NewNop())

	err := repo.SetDefault(context.Background(), begin(t, pool), "u-1", "addr-9")

	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestDelete_DefaultPromotesOldest(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(deleteSQL, drivertest.Result{Rows: [][]any{{true}}}).
		Expect(promoteSQL, drivertest.Result{Tag: "UPDATE 1"})
	repo := NewRepository(pool, zap.NewNop())

	require.NoError(t, repo.Delete(context.Background(), begin(t, pool), "u-1", "addr-1"))

	assert.Empty(t, pool.Pending())
	assert.Equal(t, []any{"u-1"}, pool.Calls()[2].Args)
}

func TestDelete_NonDefaultPromotesNothing(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(deleteSQL, drivertest.Result{Rows: [][]any{{false}}})
	repo := NewRepository(pool, zap.NewNop())

	require.NoError(t, repo.Delete(context.Background(), begin(t, pool), "u-1", "addr-2"))

	assert.Len(t, pool.Calls(), 2)
}

func TestDelete_Unknown(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(deleteSQL, drivertest.Result{})
	repo := NewRepository(pool, zap.NewNop())

	err := repo.Delete(context.Background(), begin(t, pool), "u-1", "addr-9")

	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestUpdate_DefaultClearsOthers(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(clearSQL, drivertest.Result{Tag: "UPDATE 1"}).
		Expect(updateSQL, drivertest.Result{Tag: "UPDATE 1"})
	repo := NewRepository(pool, zap.NewNop())

	a := newAddress("addr-2", true)
	a.Street = "14 MG Road"
	require.NoError(t, repo.Update(context.Background(), begin(t, pool), *a))

	calls := pool.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "14 MG Road", calls[2].Args[4])
	assert.Equal(t, true, calls[2].Args[8])
}

func TestUpdate_KeepsDefaultFlag(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(updateSQL, drivertest.Result{Tag: "UPDATE 1"})
	repo := NewRepository(pool, zap.NewNop())

	require.NoError(t, repo.Update(context.Background(), begin(t, pool), *newAddress("addr-1", false)))

	calls := pool.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, false, calls[1].Args[8])
}

func TestUpdate_Unknown(t *testing.T) {
	pool := drivertest.NewPool().
		Expect(lockSQL, drivertest.Result{Tag: "SELECT 1"}).
		Expect(updateSQL, drivertest.Result{Tag: "UPDATE 0"})
	repo := NewRepository(pool, zap.NewNop())

	err := repo.Update(context.Background(), begin(t, pool), *newAddress("addr-9", false))

	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestList_ScansRows(t *testing.T) {
	created := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	pool := drivertest.NewPool().
		Expect("ORDER BY is_default DESC, created_at", drivertest.Result{Rows: [][]any{
			{"addr-2", "u-1", "Asha Rao", "9876543210", "5 Park St", "Kolkata", "West Bengal", "700016", true, created},
			{"addr-1", "u-1", "Asha Rao", "9876543210", "12 MG Road", "Bengaluru", "Karnataka", "560001", false, created},
		}})
	repo := NewRepository(pool, zap.NewNop())

	addresses, err := repo.List(context.Background(), nil, "u-1")

	require.NoError(t, err)
	require.Len(t, addresses, 2)
	assert.Equal(t, "addr-2", addresses[0].ID)
	assert.True(t, addresses[0].IsDefault)
	assert.Equal(t, "Kolkata", addresses[0].City)
}
