package order

import (
	"strings"

	"goflare.io/creamery/models/enum"
)

// Step is one stage of the delivery timeline.
type Step struct {
	Status      enum.OrderStatus `json:"status"`
	Icon        string           `json:"icon"`
	Description string           `json:"description"`
}

var timeline = []Step{
	{enum.OrderStatusPlaced, "file-text-o", "Your order has been placed"},
	{enum.OrderStatusConfirmed, "check", "Order confirmed by seller"},
	{enum.OrderStatusShipped, "truck", "Your order has been shipped"},
	{enum.OrderStatusOutForDelivery, "motorcycle", "Out for delivery to your location"},
	{enum.OrderStatusDelivered, "check-circle", "Order delivered successfully"},
}

// Timeline returns the delivery steps in order. Cancelled is not a step.
func Timeline() []Step {
	out := make([]Step, len(timeline))
	copy(out, timeline)
	return out
}

// StepIndex is the position of status on the timeline. Statuses that are not
// on it, Cancelled included, sit at the first step.
func StepIndex(status enum.OrderStatus) int {
	for i, step := range timeline {
		if step.Status == status {
			return i
		}
	}
	return 0
}

// ProgressStep is a timeline step and whether the order has reached it.
type ProgressStep struct {
	Step
	Reached bool `json:"reached"`
	Current bool `json:"current"`
}

func Progress(status enum.OrderStatus) []ProgressStep {
	current := StepIndex(status)
	out := make([]ProgressStep, len(timeline))
	for i, step := range timeline {
		out[i] = ProgressStep{
			Step:    step,
			Reached: i <= current,
			Current: i == current,
		}
	}
	return out
}

// ShortCode is the human-facing order number: the last six characters of the
// id, upper-cased.
func ShortCode(orderID string) string {
	if len(orderID) > 6 {
		orderID = orderID[len(orderID)-6:]
	}
	return strings.ToUpper(orderID)
}
