// Package cart holds the in-memory shopping cart of a single session.
package cart

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"goflare.io/creamery/models"
)

// Item is the product snapshot copied into a cart line when it is added.
// The snapshot is not refreshed if the product changes afterwards.
type Item struct {
	ProductID  string         `json:"id"`
	Name       string         `json:"name"`
	UnitPrice  float64        `json:"price"`
	ImageURL   string         `json:"imageUrl,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Line 代表購物車中的一個商品項目
type Line struct {
	Item
	Quantity int `json:"quantity"`
}

func (l Line) Subtotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// ItemFromProduct takes the add-time snapshot of p.
func ItemFromProduct(p models.Product) Item {
	item := Item{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		ImageURL:  p.ImageURL,
	}
	if p.Category != "" || len(p.Attributes) > 0 {
		item.Attributes = make(map[string]any, len(p.Attributes)+1)
		for k, v := range p.Attributes {
			item.Attributes[k] = v
		}
		if p.Category != "" {
			item.Attributes["category"] = p.Category
		}
	}
	return item
}

// Store holds the lines of one cart. Lines keep insertion order and there is
// at most one line per product id.
type Store struct {
	mu     sync.RWMutex
	lines  []Line
	logger *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// AddToCart adds quantity units of item, merging into an existing line for the
// same product. Quantities below 1 count as 1. It reports false, leaving the
// cart untouched, when the item has no product id.
func (s *Store) AddToCart(item Item, quantity int) bool {
	if item.ProductID == "" {
		s.logger.Warn("Tried to add item without a product id", zap.String("name", item.Name))
		return false
	}
	quantity = max(1, quantity)

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(item.ProductID); i >= 0 {
		s.lines[i].Quantity += quantity
		s.logger.Debug("Cart line quantity increased",
			zap.String("product_id", item.ProductID),
			zap.Int("quantity", s.lines[i].Quantity))
		return true
	}

	item.Attributes = cloneAttributes(item.Attributes)
	s.lines = append(s.lines, Line{Item: item, Quantity: quantity})
	s.logger.Debug("Cart line added",
		zap.String("product_id", item.ProductID),
		zap.Int("quantity", quantity))
	return true
}

// DecrementQuantity lowers the line by step and drops it once it reaches zero.
func (s *Store) DecrementQuantity(productID string, step int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return
	}
	s.lines[i].Quantity -= step
	if s.lines[i].Quantity <= 0 {
		s.removeAt(i)
	}
}

// UpdateQuantity replaces the line quantity. Zero or negative removes the line.
func (s *Store) UpdateQuantity(productID string, quantity int) {
	quantity = max(0, quantity)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return
	}
	if quantity == 0 {
		s.removeAt(i)
		return
	}
	s.lines[i].Quantity = quantity
}

// UpdateQuantityString is UpdateQuantity for raw form input. Input that is not
// a number counts as zero and fractions are truncated.
func (s *Store) UpdateQuantityString(productID, raw string) {
	s.UpdateQuantity(productID, parseQuantity(raw))
}

func (s *Store) RemoveFromCart(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(productID); i >= 0 {
		s.removeAt(i)
	}
}

func (s *Store) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.logger.Debug("Cart cleared")
}

// Total is the sum of unit price times quantity over all lines, unrounded.
func (s *Store) Total() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, line := range s.lines {
		total += line.Subtotal()
	}
	return total
}

// ItemsCount is the number of units in the cart, not the number of lines.
func (s *Store) ItemsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, line := range s.lines {
		count += line.Quantity
	}
	return count
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Line, len(s.lines))
	for i, line := range s.lines {
		line.Attributes = cloneAttributes(line.Attributes)
		out[i] = line
	}
	return out
}

func (s *Store) Line(productID string) (Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(productID)
	if i < 0 {
		return Line{}, false
	}
	line := s.lines[i]
	line.Attributes = cloneAttributes(line.Attributes)
	return line, true
}

func (s *Store) indexOf(productID string) int {
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(i int) {
	s.logger.Debug("Cart line removed", zap.String("product_id", s.lines[i].ProductID))
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
}

func parseQuantity(raw string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func cloneAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
