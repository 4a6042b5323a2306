package events

import (
	"encoding/json"
	"time"

	"github.com/bangazon/checkout/pkg/messaging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
)

// OrderCompletedEvent is emitted when a cart is finalized into an order.
type OrderCompletedEvent struct {
	Carrier       propagation.MapCarrier `json:"carrier,omitempty"`
	OrderID       uuid.UUID              `json:"order_id"`
	UserID        uuid.UUID              `json:"user_id"`
	PaymentTypeID uuid.UUID              `json:"payment_type_id"`
	ProductIDs    []uuid.UUID            `json:"product_ids"`
	TotalPrice    int64                  `json:"total_price"`
	RemovedCount  int                    `json:"removed_count"`
	CompletedAt   time.Time              `json:"completed_at"`
}

func (o OrderCompletedEvent) Subject() string {
	return messaging.OrdersCompletedSubject
}

func (o OrderCompletedEvent) Key() string {
	return o.OrderID.String()
}

func (o OrderCompletedEvent) Payload() ([]byte, error) {
	return json.Marshal(o)
}

// CartItemsRemovedEvent is emitted when a checkout removed every line of a cart and left it open.
type CartItemsRemovedEvent struct {
	Carrier           propagation.MapCarrier `json:"carrier,omitempty"`
	OrderID           uuid.UUID              `json:"order_id"`
	UserID            uuid.UUID              `json:"user_id"`
	RemovedLineItems  []uuid.UUID            `json:"removed_line_items"`
	RemovedProductIDs []uuid.UUID            `json:"removed_product_ids"`
	OccurredAt        time.Time              `json:"occurred_at"`
}

func (c CartItemsRemovedEvent) Subject() string {
	return messaging.CartItemsRemovedSubject
}

func (c CartItemsRemovedEvent) Key() string {
	return c.OrderID.String()
}

func (c CartItemsRemovedEvent) Payload() ([]byte, error) {
	return json.Marshal(c)
}
