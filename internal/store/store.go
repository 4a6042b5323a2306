// Package store provides the storage contracts of the cart and checkout flow
// together with a PostgreSQL and an in-memory implementation.
package store

import (
	"context"
	"time"

	"github.com/bangazon/checkout/internal/store/db"
	"github.com/google/uuid"
)

// ProductReader gives read access to the catalog.
type ProductReader interface {
	// FindProductByID returns the product with its base quantity and active flag.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindProductByID(ctx context.Context, id uuid.UUID) (*db.Product, error)
}

// PaymentMethodReader answers ownership questions about payment types.
type PaymentMethodReader interface {
	// IsActivePaymentMethodOwnedBy reports whether the payment type exists, is active and belongs to userID.
	IsActivePaymentMethodOwnedBy(ctx context.Context, paymentTypeID, userID uuid.UUID) (bool, error)
}

// OrderStore is an interface for order and line item storage operations.
type OrderStore interface {
	// FindOpenOrderByUserID returns the user's open order and its line items in insertion order.
	// Returns ErrOrderNotFound if the user has no open order.
	FindOpenOrderByUserID(ctx context.Context, userID uuid.UUID) (*db.Order, []db.LineItem, error)

	// CreateOrder inserts a new open order for the user.
	// Returns ErrOpenOrderExists if the user already has one.
	CreateOrder(ctx context.Context, userID uuid.UUID) (*db.Order, error)

	// FindByID retrieves a single order with its line items in insertion order.
	// Returns ErrOrderNotFound if no order exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*db.Order, []db.LineItem, error)

	// FindOrdersByUserID returns the user's orders, newest first.
	FindOrdersByUserID(ctx context.Context, params *db.FindOrdersByUserIDParams) ([]db.Order, error)

	// CountCompletedLineItems counts the units of a product held by completed orders.
	CountCompletedLineItems(ctx context.Context, productID uuid.UUID) (int64, error)

	// AddLineItem appends one unit of a product to an open order and bumps its version.
	// Returns ErrOrderNotFound or ErrAlreadyCompleted.
	AddLineItem(ctx context.Context, orderID, productID uuid.UUID) (*db.LineItem, error)

	// RemoveLineItem deletes one line item from an open order and bumps its version.
	// Returns ErrOrderNotFound, ErrAlreadyCompleted or ErrLineItemNotFound.
	RemoveLineItem(ctx context.Context, orderID, lineItemID uuid.UUID) error

	// Reconcile atomically applies the outcome of a checkout attempt.
	// Returns ErrOptimisticLock when the order changed since params.Version was read,
	// and ErrInsufficientStock when a claim can no longer be satisfied.
	Reconcile(ctx context.Context, params *ReconcileParams) (*db.Order, error)
}

// Store bundles every contract a backend has to provide.
type Store interface {
	ProductReader
	PaymentMethodReader
	OrderStore
}

// Completion finalizes an order.
type Completion struct {
	PaymentTypeID uuid.UUID
	CompletedAt   time.Time
}

// ReconcileParams describes the writes of one checkout attempt.
type ReconcileParams struct {
	OrderID uuid.UUID
	// Version is the order version the attempt was computed from.
	Version int32
	// RemoveLineItemIDs are deleted from the order.
	RemoveLineItemIDs []uuid.UUID
	// Claims maps every product the finalized order keeps to its unit count.
	// Only checked when Completion is set.
	Claims map[uuid.UUID]int64
	// Completion is nil when the order stays open.
	Completion *Completion
}
