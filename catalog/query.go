package catalog

import (
	"slices"
	"strings"

	"goflare.io/creamery/models"
)

// AllCategories selects every category in a Query.
const AllCategories = "All"

// Query is the set of list controls on the shop screen.
type Query struct {
	Category    string
	Search      string
	InStockOnly bool
	Descending  bool
}

// Filter returns the products matching q, sorted by price. Products with the
// same price keep their catalog order.
func Filter(products []models.Product, q Query) []models.Product {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if q.Category != "" && q.Category != AllCategories && p.Category != q.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		if q.InStockOnly && !p.InStock {
			continue
		}
		out = append(out, p)
	}

	slices.SortStableFunc(out, func(a, b models.Product) int {
		if q.Descending {
			a, b = b, a
		}
		switch {
		case a.Price < b.Price:
			return -1
		case a.Price > b.Price:
			return 1
		}
		return 0
	})
	return out
}

// Categories lists the distinct non-empty categories in first-seen order,
// led by AllCategories.
func Categories(products []models.Product) []string {
	out := []string{AllCategories}
	seen := make(map[string]struct{})
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
