package models

import "time"

// Product 代表冰淇淋商品，對應 products 集合中的一筆文件
type Product struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Price       float64        `json:"price"`
	Category    string         `json:"category,omitempty"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	InStock     bool           `json:"inStock"`
	Stock       int            `json:"stock"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ProductFields is a partial update. Nil pointers leave the field untouched.
type ProductFields struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Price       *float64       `json:"price,omitempty"`
	Category    *string        `json:"category,omitempty"`
	ImageURL    *string        `json:"imageUrl,omitempty"`
	InStock     *bool          `json:"inStock,omitempty"`
	Stock       *int           `json:"stock,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

func (f ProductFields) IsEmpty() bool {
	return f.Name == nil && f.Description == nil && f.Price == nil && f.Category == nil &&
		f.ImageURL == nil && f.InStock == nil && f.Stock == nil && len(f.Attributes) == 0
}
