package address

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/creamery/driver"
	"goflare.io/creamery/models"
)

var _ Repository = (*repository)(nil)

// Repository stores the addresses of every user. Add, Update, SetDefault and
// Delete serialize on a per-user lock held until the transaction ends, so
// they must be given a transaction.
type Repository interface {
	List(ctx context.Context, tx pgx.Tx, userID string) ([]models.Address, error)
	Get(ctx context.Context, tx pgx.Tx, userID, addressID string) (*models.Address, error)
	Default(ctx context.Context, tx pgx.Tx, userID string) (*models.Address, error)
	Add(ctx context.Context, tx pgx.Tx, address *models.Address) error
	Update(ctx context.Context, tx pgx.Tx, address models.Address) error
	Delete(ctx context.Context, tx pgx.Tx, userID, addressID string) error
	SetDefault(ctx context.Context, tx pgx.Tx, userID, addressID string) error
}

const addressColumns = `id, user_id, name, phone, street, city, state, pin, is_default, created_at`

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

func (r *repository) List(ctx context.Context, tx pgx.Tx, userID string) ([]models.Address, error) {
	rows, err := driver.Use(r.conn, tx).Query(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		r.logger.Error("Failed to list addresses", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	addresses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Address, error) {
		a, err := scanAddress(row)
		if err != nil {
			return models.Address{}, err
		}
		return *a, nil
	})
	if err != nil {
		r.logger.Error("Failed to scan addresses", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return addresses, nil
}

func (r *repository) Get(ctx context.Context, tx pgx.Tx, userID, addressID string) (*models.Address, error) {
	row := driver.Use(r.conn, tx).QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 AND id = $2`, userID, addressID)
	a, err := scanAddress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get address", zap.String("address_id", addressID), zap.Error(err))
		return nil, err
	}
	return a, nil
}

func (r *repository) Default(ctx context.Context, tx pgx.Tx, userID string) (*models.Address, error) {
	row := driver.Use(r.conn, tx).QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 AND is_default LIMIT 1`, userID)
	a, err := scanAddress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get default address", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return a, nil
}

// Add inserts address. The first address of a user always becomes the default,
// and a new default address clears the flag on the others.
func (r *repository) Add(ctx context.Context, tx pgx.Tx, address *models.Address) error {
	q := driver.Use(r.conn, tx)
	if err := r.lockUser(ctx, q, address.UserID); err != nil {
		return err
	}

	// 1. 第一個地址為預設地址
	var count int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM addresses WHERE user_id = $1`, address.UserID).Scan(&count); err != nil {
		r.logger.Error("Failed to count addresses", zap.String("user_id", address.UserID), zap.Error(err))
		return err
	}
	if count == 0 {
		address.IsDefault = true
	}

	// 2. 清除其他預設地址
	if address.IsDefault && count > 0 {
		if err := r.clearDefault(ctx, q, address.UserID); err != nil {
			return err
		}
	}

	// 3. 新增地址
	_, err := q.Exec(ctx, `INSERT INTO addresses (`+addressColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		address.ID, address.UserID, address.Name, address.Phone, address.Street, address.City,
		address.State, address.Pin, address.IsDefault, address.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to add address", zap.String("user_id", address.UserID), zap.Error(err))
		return err
	}
	return nil
}

// Update rewrites the editable fields of address. Setting IsDefault makes it
// the only default; clearing it is ignored, since a user always keeps one.
func (r *repository) Update(ctx context.Context, tx pgx.Tx, address models.Address) error {
	q := driver.Use(r.conn, tx)
	if err := r.lockUser(ctx, q, address.UserID); err != nil {
		return err
	}

	if address.IsDefault {
		if err := r.clearDefault(ctx, q, address.UserID); err != nil {
			return err
		}
	}

	tag, err := q.Exec(ctx, `UPDATE addresses
SET name = $3, phone = $4, street = $5, city = $6, state = $7, pin = $8, is_default = is_default OR $9
WHERE user_id = $1 AND id = $2`,
		address.UserID, address.ID, address.Name, address.Phone, address.Street, address.City,
		address.State, address.Pin, address.IsDefault)
	if err != nil {
		r.logger.Error("Failed to update address", zap.String("address_id", address.ID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAddressNotFound
	}
	return nil
}

// Delete removes an address. When it was the default, the oldest remaining
// address takes over.
func (r *repository) Delete(ctx context.Context, tx pgx.Tx, userID, addressID string) error {
	q := driver.Use(r.conn, tx)
	if err := r.lockUser(ctx, q, userID); err != nil {
		return err
	}

	var wasDefault bool
	err := q.QueryRow(ctx, `DELETE FROM addresses WHERE user_id = $1 AND id = $2 RETURNING is_default`,
		userID, addressID).Scan(&wasDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAddressNotFound
	}
	if err != nil {
		r.logger.Error("Failed to delete address", zap.String("address_id", addressID), zap.Error(err))
		return err
	}

	if wasDefault {
		_, err = q.Exec(ctx, `UPDATE addresses SET is_default = TRUE
WHERE id = (SELECT id FROM addresses WHERE user_id = $1 ORDER BY created_at LIMIT 1)`, userID)
		if err != nil {
			r.logger.Error("Failed to promote default address", zap.String("user_id", userID), zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *repository) SetDefault(ctx context.Context, tx pgx.Tx, userID, addressID string) error {
	q := driver.Use(r.conn, tx)
	if err := r.lockUser(ctx, q, userID); err != nil {
		return err
	}

	if err := r.clearDefault(ctx, q, userID); err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `UPDATE addresses SET is_default = TRUE WHERE user_id = $1 AND id = $2`, userID, addressID)
	if err != nil {
		r.logger.Error("Failed to set default address", zap.String("address_id", addressID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAddressNotFound
	}
	return nil
}

// lockUser takes a transaction-scoped advisory lock on the addresses of
// userID. Row locks cannot cover a user who has no address yet.
func (r *repository) lockUser(ctx context.Context, q driver.Querier, userID string) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(userID)); err != nil {
		r.logger.Error("Failed to lock addresses", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

func lockKey(userID string) string {
	return "addresses:" + userID
}

func (r *repository) clearDefault(ctx context.Context, q driver.Querier, userID string) error {
	if _, err := q.Exec(ctx, `UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`, userID); err != nil {
		r.logger.Error("Failed to clear default address", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

func scanAddress(row pgx.Row) (*models.Address, error) {
	var a models.Address
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Phone, &a.Street, &a.City, &a.State, &a.Pin,
		&a.IsDefault, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
