package models

import (
	"time"

	"goflare.io/creamery/models/enum"
)

// Order 代表訂單
type Order struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	UserEmail         string             `json:"userEmail,omitempty"`
	Items             []OrderItem        `json:"items"`
	Total             float64            `json:"total"`
	Address           Address            `json:"address"`
	PaymentMethod     enum.PaymentMethod `json:"paymentMethod"`
	PaymentIntentID   string             `json:"paymentIntentId,omitempty"`
	Status            enum.OrderStatus   `json:"status"`
	EstimatedDelivery time.Time          `json:"estimatedDelivery"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// OrderItem 代表訂單中的單個商品項目，價格與名稱是下單當下的快照
type OrderItem struct {
	ProductID string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

func (o *Order) ItemsCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}
