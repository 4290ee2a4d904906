package catalog

import (
	"context"

	"goflare.io/creamery/models"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionRemoved Action = "removed"
	ActionBulk    Action = "bulk"
)

// Event describes a confirmed change to the products collection. Origin is the
// id of the catalog that made the change so it can skip its own events.
type Event struct {
	Action    Action          `json:"action"`
	Origin    string          `json:"origin"`
	ProductID string          `json:"productId,omitempty"`
	Product   *models.Product `json:"product,omitempty"`
	Stock     int             `json:"stock,omitempty"`
}

// Publisher fans catalog events out to other mirrors.
type Publisher interface {
	PublishProductEvent(ctx context.Context, event Event) error
}

type nopPublisher struct{}

func (nopPublisher) PublishProductEvent(context.Context, Event) error { return nil }
