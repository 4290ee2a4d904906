package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/creamery/driver"
	"goflare.io/creamery/models"
)

var _ Repository = (*repository)(nil)

// Repository is the remote products collection.
type Repository interface {
	List(ctx context.Context, tx pgx.Tx) ([]*models.Product, error)
	Get(ctx context.Context, tx pgx.Tx, id string) (*models.Product, error)
	Create(ctx context.Context, tx pgx.Tx, product *models.Product) error
	CreateMany(ctx context.Context, tx pgx.Tx, products []*models.Product) error
	UpdateFields(ctx context.Context, tx pgx.Tx, id string, fields models.ProductFields, updatedAt time.Time) (*models.Product, error)
	SetAllStock(ctx context.Context, tx pgx.Tx, count int, updatedAt time.Time) error
	Delete(ctx context.Context, tx pgx.Tx, id string) error
}

const productColumns = `id, name, description, price, category, image_url, in_stock, stock, attributes, created_at, updated_at`

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

func (r *repository) List(ctx context.Context, tx pgx.Tx) ([]*models.Product, error) {
	rows, err := driver.Use(r.conn, tx).Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
	if err != nil {
		r.logger.Error("Failed to list products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			r.logger.Error("Failed to scan product", zap.Error(err))
			return nil, err
		}
		products = append(products, product)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Failed to list products", zap.Error(err))
		return nil, err
	}

	return products, nil
}

func (r *repository) Get(ctx context.Context, tx pgx.Tx, id string) (*models.Product, error) {
	cacheKey := productCacheKey(id)
	var product models.Product

	// 嘗試從快取中獲取
	found, err := r.cache.Get(ctx, cacheKey, &product)
	if err != nil {
		r.logger.Warn("Failed to get product from cache", zap.Error(err))
	}
	if found {
		return &product, nil
	}

	row := driver.Use(r.conn, tx).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	loaded, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get product", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}

	// 更新快取
	if err := r.cache.Set(ctx, cacheKey, loaded); err != nil {
		r.logger.Warn("Failed to cache product", zap.Error(err))
	}

	return loaded, nil
}

func (r *repository) Create(ctx context.Context, tx pgx.Tx, product *models.Product) error {
	attributes, err := encodeAttributes(product.Attributes)
	if err != nil {
		return err
	}

	_, err = driver.Use(r.conn, tx).Exec(ctx, insertProductSQL,
		product.ID, product.Name, product.Description, product.Price, product.Category,
		product.ImageURL, product.InStock, product.Stock, attributes,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create product", zap.String("product_id", product.ID), zap.Error(err))
		return err
	}

	return nil
}

const insertProductSQL = `INSERT INTO products (` + productColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (r *repository) CreateMany(ctx context.Context, tx pgx.Tx, products []*models.Product) error {
	batch := &pgx.Batch{}
	for _, product := range products {
		attributes, err := encodeAttributes(product.Attributes)
		if err != nil {
			return err
		}
		batch.Queue(insertProductSQL,
			product.ID, product.Name, product.Description, product.Price, product.Category,
			product.ImageURL, product.InStock, product.Stock, attributes,
			product.CreatedAt, product.UpdatedAt)
	}

	var results pgx.BatchResults
	if tx != nil {
		results = tx.SendBatch(ctx, batch)
	} else {
		results = r.conn.SendBatch(ctx, batch)
	}
	defer func() {
		if err := results.Close(); err != nil {
			r.logger.Error("failed to close batch", zap.Error(err))
		}
	}()

	for i := range products {
		if _, err := results.Exec(); err != nil {
			r.logger.Error("Failed to seed product", zap.String("product_id", products[i].ID), zap.Error(err))
			return fmt.Errorf("failed to insert product %s: %w", products[i].ID, err)
		}
	}

	return nil
}

func (r *repository) UpdateFields(ctx context.Context, tx pgx.Tx, id string, fields models.ProductFields, updatedAt time.Time) (*models.Product, error) {
	var attributes any
	if len(fields.Attributes) > 0 {
		raw, err := json.Marshal(fields.Attributes)
		if err != nil {
			return nil, err
		}
		attributes = string(raw)
	}

	row := driver.Use(r.conn, tx).QueryRow(ctx, `UPDATE products SET
	name        = COALESCE($2, name),
	description = COALESCE($3, description),
	price       = COALESCE($4, price),
	category    = COALESCE($5, category),
	image_url   = COALESCE($6, image_url),
	in_stock    = COALESCE($7, in_stock),
	stock       = COALESCE($8, stock),
	attributes  = attributes || COALESCE($9::jsonb, '{}'::jsonb),
	updated_at  = $10
WHERE id = $1
RETURNING `+productColumns,
		id, fields.Name, fields.Description, fields.Price, fields.Category,
		fields.ImageURL, fields.InStock, fields.Stock, attributes, updatedAt)

	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		r.logger.Error("Failed to update product", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}

	r.invalidate(ctx, id)
	return product, nil
}

func (r *repository) SetAllStock(ctx context.Context, tx pgx.Tx, count int, updatedAt time.Time) error {
	rows, err := driver.Use(r.conn, tx).Query(ctx,
		`UPDATE products SET stock = $1, in_stock = $2, updated_at = $3 RETURNING id`,
		count, count > 0, updatedAt)
	if err != nil {
		r.logger.Error("Failed to update stock", zap.Int("stock", count), zap.Error(err))
		return err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		r.logger.Error("Failed to update stock", zap.Int("stock", count), zap.Error(err))
		return err
	}

	r.invalidate(ctx, ids...)
	return nil
}

func (r *repository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := driver.Use(r.conn, tx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete product", zap.String("product_id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *repository) invalidate(ctx context.Context, ids ...string) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productCacheKey(id)
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}
}

func productCacheKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var (
		product    models.Product
		attributes []byte
	)
	err := row.Scan(&product.ID, &product.Name, &product.Description, &product.Price,
		&product.Category, &product.ImageURL, &product.InStock, &product.Stock, &attributes,
		&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(attributes) > 0 {
		if err = json.Unmarshal(attributes, &product.Attributes); err != nil {
			return nil, err
		}
		if len(product.Attributes) == 0 {
			product.Attributes = nil
		}
	}
	return &product, nil
}

func encodeAttributes(attributes map[string]any) (string, error) {
	if len(attributes) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(attributes)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
