package order

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
	"goflare.io/creamery/models/enum"
)

var ErrOrderNotFound = errors.New("order not found")

var _ Repository = (*repository)(nil)

type Repository interface {
	CreateOrder(ctx context.Context, tx pgx.Tx, order *models.Order) error
	GetOrder(ctx context.Context, tx pgx.Tx, orderID string) (*models.Order, error)
	GetOrderByPaymentIntentID(ctx context.Context, tx pgx.Tx, paymentIntentID string) (*models.Order, error)
	ListOrders(ctx context.Context, tx pgx.Tx, userID string, limit, offset uint64) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID string, status enum.OrderStatus, updatedAt time.Time) error
	InvalidateOrder(ctx context.Context, orderID string)
}

const orderColumns = `id, user_id, user_email, items, total, address, payment_method, payment_intent_id,
	status, estimated_delivery, created_at, updated_at`

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

func (r *repository) CreateOrder(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	address, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("failed to encode order address: %w", err)
	}

	_, err = driver.Use(r.conn, tx).Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		order.ID, order.UserID, order.UserEmail, string(items), order.Total, string(address),
		string(order.PaymentMethod), order.PaymentIntentID, string(order.Status),
		order.EstimatedDelivery, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create order", zap.String("user_id", order.UserID), zap.Error(err))
		return err
	}

	return nil
}

func (r *repository) GetOrder(ctx context.Context, tx pgx.Tx, orderID string) (*models.Order, error) {
	cacheKey := orderCacheKey(orderID)
	var order models.Order

	// 嘗試從快取中獲取
	found, err := r.cache.Get(ctx, cacheKey, &order)
	if err != nil {
		r.logger.Warn("Failed to get order from cache", zap.Error(err))
	}
	if found {
		return &order, nil
	}

	row := driver.Use(r.conn, tx).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	loaded, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get order", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}

	// 更新快取
	if err := r.cache.Set(ctx, cacheKey, loaded); err != nil {
		r.logger.Warn("Failed to cache order", zap.Error(err))
	}

	return loaded, nil
}

func (r *repository) GetOrderByPaymentIntentID(ctx context.Context, tx pgx.Tx, paymentIntentID string) (*models.Order, error) {
	row := driver.Use(r.conn, tx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_intent_id = $1 AND payment_intent_id <> ''`, paymentIntentID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get order by payment intent", zap.String("payment_intent_id", paymentIntentID), zap.Error(err))
		return nil, err
	}
	return order, nil
}

// ListOrders returns the orders of userID, newest first. A zero limit lists all of them.
func (r *repository) ListOrders(ctx context.Context, tx pgx.Tx, userID string, limit, offset uint64) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, int64(limit), int64(offset))
	}

	rows, err := driver.Use(r.conn, tx).Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error("Failed to scan order", zap.Error(err))
			return nil, err
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		r.logger.Error("Failed to list orders", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return orders, nil
}

// UpdateOrderStatus sets the status of an order. Without tx the cached order
// is dropped right away. Inside a transaction the caller calls InvalidateOrder
// after commit, otherwise a concurrent GetOrder could cache the old row again.
func (r *repository) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID string, status enum.OrderStatus, updatedAt time.Time) error {
	tag, err := driver.Use(r.conn, tx).Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		orderID, string(status), updatedAt)
	if err != nil {
		r.logger.Error("Failed to update order status", zap.String("order_id", orderID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	// 使相關的快取失效
	if tx == nil {
		r.InvalidateOrder(ctx, orderID)
	}

	return nil
}

func (r *repository) InvalidateOrder(ctx context.Context, orderID string) {
	if err := r.cache.Delete(ctx, orderCacheKey(orderID)); err != nil {
		r.logger.Warn("Failed to invalidate order cache", zap.String("order_id", orderID), zap.Error(err))
	}
}

func orderCacheKey(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order          models.Order
		items, address []byte
		paymentMethod  string
		status         string
	)
	err := row.Scan(&order.ID, &order.UserID, &order.UserEmail, &items, &order.Total, &address,
		&paymentMethod, &order.PaymentIntentID, &status, &order.EstimatedDelivery,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if err = json.Unmarshal(address, &order.Address); err != nil {
		return nil, fmt.Errorf("failed to decode order address: %w", err)
	}
	order.PaymentMethod = enum.PaymentMethod(paymentMethod)
	order.Status = enum.OrderStatus(status)
	return &order, nil
}
