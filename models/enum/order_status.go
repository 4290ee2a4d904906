package enum

// OrderStatus 表示訂單的狀態
type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "Order Placed"     // 訂單已建立
	OrderStatusConfirmed      OrderStatus = "Confirmed"        // 商家已確認
	OrderStatusShipped        OrderStatus = "Shipped"          // 已出貨
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery" // 配送中
	OrderStatusDelivered      OrderStatus = "Delivered"        // 已送達
	OrderStatusCancelled      OrderStatus = "Cancelled"        // 訂單取消
)

var orderStatuses = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

func (s OrderStatus) Valid() bool {
	for _, status := range orderStatuses {
		if s == status {
			return true
		}
	}
	return false
}
