// Package catalog keeps a local mirror of the products collection.
//
// Every mutation is written to the remote collection first. The local list is
// only changed once the remote write has succeeded, so a failed write leaves
// the mirror exactly as it was and no rollback is needed.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"goflare.io/creamery/models"
)

var ErrProductNotFound = errors.New("product not found")

type Catalog struct {
	mu       sync.RWMutex
	id       string
	products []models.Product

	repo      Repository
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func New(repo Repository, publisher Publisher, logger *zap.Logger) *Catalog {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		id:        uuid.NewString(),
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ID identifies this mirror as the origin of the events it publishes.
func (c *Catalog) ID() string {
	return c.id
}

// Load replaces the local list with the remote collection.
func (c *Catalog) Load(ctx context.Context) error {
	products, err := c.repo.List(ctx, nil)
	if err != nil {
		c.logger.Error("Failed to load products", zap.Error(err))
		return fmt.Errorf("failed to load products: %w", err)
	}

	list := make([]models.Product, len(products))
	for i, p := range products {
		list[i] = *p
	}

	c.mu.Lock()
	c.products = list
	c.mu.Unlock()

	c.logger.Info("Products loaded", zap.Int("count", len(list)))
	return nil
}

// Products returns a copy of the local list.
func (c *Catalog) Products() []models.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Get(id string) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(id); i >= 0 {
		return c.products[i], true
	}
	return models.Product{}, false
}

func (c *Catalog) UpdateProductPrice(ctx context.Context, id string, price float64) (models.Product, error) {
	return c.UpdateProductFields(ctx, id, models.ProductFields{Price: &price})
}

func (c *Catalog) SetProductStock(ctx context.Context, id string, inStock bool) (models.Product, error) {
	return c.UpdateProductFields(ctx, id, models.ProductFields{InStock: &inStock})
}

// UpdateProductFields merges fields into the product with the given id.
func (c *Catalog) UpdateProductFields(ctx context.Context, id string, fields models.ProductFields) (models.Product, error) {
	if fields.IsEmpty() {
		p, ok := c.Get(id)
		if !ok {
			return models.Product{}, ErrProductNotFound
		}
		return p, nil
	}

	updated, err := c.repo.UpdateFields(ctx, nil, id, fields, c.now())
	if err != nil {
		c.logger.Error("Failed to update product", zap.String("product_id", id), zap.Error(err))
		return models.Product{}, fmt.Errorf("failed to update product %s: %w", id, err)
	}

	c.upsertLocal(*updated)
	c.publish(ctx, Event{Action: ActionUpdated, ProductID: id, Product: updated})

	return *updated, nil
}

// AddProduct inserts product, generating an id when it has none.
func (c *Catalog) AddProduct(ctx context.Context, product models.Product) (models.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := c.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := c.repo.Create(ctx, nil, &product); err != nil {
		c.logger.Error("Failed to add product", zap.String("name", product.Name), zap.Error(err))
		return models.Product{}, fmt.Errorf("failed to add product: %w", err)
	}

	c.upsertLocal(product)
	c.publish(ctx, Event{Action: ActionCreated, ProductID: product.ID, Product: &product})

	return product, nil
}

func (c *Catalog) RemoveProduct(ctx context.Context, id string) error {
	if err := c.repo.Delete(ctx, nil, id); err != nil {
		c.logger.Error("Failed to remove product", zap.String("product_id", id), zap.Error(err))
		return fmt.Errorf("failed to remove product %s: %w", id, err)
	}

	c.removeLocal(id)
	c.publish(ctx, Event{Action: ActionRemoved, ProductID: id})

	return nil
}

// BulkUpdateStocks sets the same stock count on every product and marks them
// in stock when count is positive.
func (c *Catalog) BulkUpdateStocks(ctx context.Context, count int) error {
	now := c.now()
	if err := c.repo.SetAllStock(ctx, nil, count, now); err != nil {
		c.logger.Error("Failed to bulk update stock", zap.Int("stock", count), zap.Error(err))
		return fmt.Errorf("failed to bulk update stock: %w", err)
	}

	c.setAllStockLocal(count, now)
	c.publish(ctx, Event{Action: ActionBulk, Stock: count})

	return nil
}

// Seed inserts products in one batch, stamping ids and timestamps, and appends
// them to the local list.
func (c *Catalog) Seed(ctx context.Context, products []models.Product) ([]string, error) {
	now := c.now()
	batch := make([]*models.Product, len(products))
	for i := range products {
		p := products[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = now
		p.UpdatedAt = now
		batch[i] = &p
	}

	if err := c.repo.CreateMany(ctx, nil, batch); err != nil {
		c.logger.Error("Failed to seed products", zap.Error(err))
		return nil, fmt.Errorf("failed to seed products: %w", err)
	}

	ids := make([]string, len(batch))
	for i, p := range batch {
		c.upsertLocal(*p)
		ids[i] = p.ID
	}
	c.logger.Info("Products seeded", zap.Int("count", len(ids)))

	return ids, nil
}

// ApplyEvent mirrors a change made by another catalog. Events this catalog
// published itself are ignored.
func (c *Catalog) ApplyEvent(event Event) {
	if event.Origin == c.id {
		return
	}

	switch event.Action {
	case ActionCreated, ActionUpdated:
		if event.Product != nil {
			c.upsertLocal(*event.Product)
		}
	case ActionRemoved:
		c.removeLocal(event.ProductID)
	case ActionBulk:
		c.setAllStockLocal(event.Stock, c.now())
	default:
		c.logger.Warn("Unknown catalog event", zap.String("action", string(event.Action)))
	}
}

func (c *Catalog) publish(ctx context.Context, event Event) {
	event.Origin = c.id
	if err := c.publisher.PublishProductEvent(ctx, event); err != nil {
		c.logger.Warn("Failed to publish catalog event",
			zap.String("action", string(event.Action)),
			zap.String("product_id", event.ProductID),
			zap.Error(err))
	}
}

// upsertLocal replaces the product in place, or appends it when this mirror
// has not seen it yet.
func (c *Catalog) upsertLocal(product models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(product.ID); i >= 0 {
		c.products[i] = product
		return
	}
	c.products = append(c.products, product)
}

func (c *Catalog) removeLocal(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(id); i >= 0 {
		c.products = append(c.products[:i:i], c.products[i+1:]...)
	}
}

func (c *Catalog) setAllStockLocal(count int, updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.products {
		c.products[i].Stock = count
		c.products[i].InStock = count > 0
		c.products[i].UpdatedAt = updatedAt
	}
}

func (c *Catalog) indexOf(id string) int {
	for i := range c.products {
		if c.products[i].ID == id {
			return i
		}
	}
	return -1
}
