package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/creamery/driver"
	"goflare.io/creamery/models"
)

var ErrUserNotFound = errors.New("user not found")

var _ Repository = (*repository)(nil)

type Repository interface {
	Upsert(ctx context.Context, tx pgx.Tx, profile models.UserProfile) (*models.UserProfile, error)
	Get(ctx context.Context, tx pgx.Tx, userID string) (*models.UserProfile, error)
	SetPhotoURL(ctx context.Context, tx pgx.Tx, userID, photoURL string, updatedAt time.Time) error
}

type repository struct {
	conn   driver.PostgresPool
	cache  *driver.Cache
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, cache *driver.Cache, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		cache:  cache,
		logger: logger,
	}
}

// Upsert creates the profile on first sign-in and merges the non-empty fields
// afterwards. created_at is kept from the first write.
func (r *repository) Upsert(ctx context.Context, tx pgx.Tx, profile models.UserProfile) (*models.UserProfile, error) {
	row := driver.Use(r.conn, tx).QueryRow(ctx, `INSERT INTO users (id, email, display_name, photo_url, is_admin, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (id) DO UPDATE SET
	email        = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
	display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
	photo_url    = COALESCE(NULLIF(EXCLUDED.photo_url, ''), users.photo_url),
	updated_at   = EXCLUDED.updated_at
RETURNING id, email, display_name, photo_url, is_admin, created_at, updated_at`,
		profile.ID, profile.Email, profile.DisplayName, profile.PhotoURL, profile.IsAdmin, profile.UpdatedAt)

	saved, err := scanUser(row)
	if err != nil {
		r.logger.Error("Failed to upsert user", zap.String("user_id", profile.ID), zap.Error(err))
		return nil, err
	}

	r.invalidate(ctx, profile.ID)
	return saved, nil
}

func (r *repository) Get(ctx context.Context, tx pgx.Tx, userID string) (*models.UserProfile, error) {
	cacheKey := userCacheKey(userID)
	var profile models.UserProfile

	found, err := r.cache.Get(ctx, cacheKey, &profile)
	if err != nil {
		r.logger.Warn("Failed to get user from cache", zap.Error(err))
	}
	if found {
		return &profile, nil
	}

	row := driver.Use(r.conn, tx).QueryRow(ctx,
		`SELECT id, email, display_name, photo_url, is_admin, created_at, updated_at FROM users WHERE id = $1`, userID)
	loaded, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	if err := r.cache.Set(ctx, cacheKey, loaded); err != nil {
		r.logger.Warn("Failed to cache user", zap.Error(err))
	}
	return loaded, nil
}

func (r *repository) SetPhotoURL(ctx context.Context, tx pgx.Tx, userID, photoURL string, updatedAt time.Time) error {
	tag, err := driver.Use(r.conn, tx).Exec(ctx,
		`UPDATE users SET photo_url = $2, updated_at = $3 WHERE id = $1`, userID, photoURL, updatedAt)
	if err != nil {
		r.logger.Error("Failed to set photo url", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	r.invalidate(ctx, userID)
	return nil
}

func (r *repository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.Delete(ctx, userCacheKey(userID)); err != nil {
		r.logger.Warn("Failed to invalidate user cache", zap.Error(err))
	}
}

func userCacheKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

func scanUser(row pgx.Row) (*models.UserProfile, error) {
	var u models.UserProfile
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
