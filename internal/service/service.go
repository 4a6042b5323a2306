// Package service provides the cart and checkout business logic.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ordererrors "github.com/bangazon/checkout/internal/errors"
	"github.com/bangazon/checkout/internal/store"
	"github.com/bangazon/checkout/internal/store/db"
	"github.com/bangazon/checkout/pkg/messaging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/bangazon/checkout/internal/service"

// DefaultMaxAttempts allows one retry after a conflicting concurrent write.
const DefaultMaxAttempts = 2

// CheckoutService defines the cart, checkout and order history operations.
type CheckoutService interface {
	// Available returns the units of a product not locked in completed orders.
	// Returns ErrProductNotFound if the product does not exist.
	Available(ctx context.Context, productID uuid.UUID) (int64, error)

	// ProductAvailability returns the product together with its derived availability.
	ProductAvailability(ctx context.Context, productID uuid.UUID) (*ProductAvailabilityDto, error)

	// GetOrCreateOpenCart returns the user's open cart, creating an empty one if needed.
	GetOrCreateOpenCart(ctx context.Context, userID uuid.UUID) (*OrderDto, error)

	// AddLineItem appends one unit of a product to an open cart without checking availability.
	AddLineItem(ctx context.Context, cartID, productID uuid.UUID) (*LineItemDto, error)

	// AddToCart adds one unit of an active product to the user's open cart.
	AddToCart(ctx context.Context, userID, productID uuid.UUID) (*AddToCartResult, error)

	// RemoveFromCart removes one line item from the user's open cart.
	RemoveFromCart(ctx context.Context, userID, lineItemID uuid.UUID) error

	// Checkout reconciles the cart against current availability and finalizes it.
	Checkout(ctx context.Context, userID, cartID, paymentTypeID uuid.UUID) (*CheckoutResult, error)

	// FindByID retrieves a single order of the user.
	// Returns ErrOrderNotFound or ErrAccessDenied.
	FindByID(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*OrderDto, error)

	// FindOrdersByUserID returns the user's orders, newest first.
	FindOrdersByUserID(ctx context.Context, userID uuid.UUID, offset, limit int32) ([]OrderDto, error)
}

// Options tune a Service.
type Options struct {
	// MaxAttempts bounds the checkout attempts made when concurrent writes conflict.
	MaxAttempts int
	// Now is the clock used for completion timestamps.
	Now func() time.Time
}

// Service implements CheckoutService.
type Service struct {
	orders      store.OrderStore
	products    store.ProductReader
	payments    store.PaymentMethodReader
	publisher   messaging.Publisher
	logger      *slog.Logger
	tracer      trace.Tracer
	maxAttempts int
	now         func() time.Time

	finalizedCounter metric.Int64Counter
	stillOpenCounter metric.Int64Counter
	removedCounter   metric.Int64Counter
	conflictCounter  metric.Int64Counter
}

// NewService creates a new instance of CheckoutService backed by the given store.
func NewService(st store.Store, publisher messaging.Publisher, logger *slog.Logger, opts Options) *Service {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if publisher == nil {
		publisher = messaging.NewLogPublisher(logger)
	}
	meter := otel.Meter(instrumentationName)
	return &Service{
		orders:           st,
		products:         st,
		payments:         st,
		publisher:        publisher,
		logger:           logger.With("component", "checkout-service"),
		tracer:           otel.Tracer(instrumentationName),
		maxAttempts:      opts.MaxAttempts,
		now:              opts.Now,
		finalizedCounter: mustCounter(meter, "checkouts_finalized", "Total number of carts finalized into orders"),
		stillOpenCounter: mustCounter(meter, "checkouts_still_open", "Total number of checkouts that left the cart open"),
		removedCounter:   mustCounter(meter, "checkout_line_items_removed", "Total number of line items removed during checkout"),
		conflictCounter:  mustCounter(meter, "checkout_conflicts", "Total number of checkout attempts lost to a concurrent write"),
	}
}

func mustCounter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		panic(fmt.Sprintf("failed to create %s counter: %v", name, err))
	}
	return counter
}

const (
	OrderStatusOpen      = "open"
	OrderStatusCompleted = "completed"
)

// OrderDto represents the data transfer object for an order or a cart.
// Version is read-only and changes with every write to the order.
type OrderDto struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	PaymentTypeID *uuid.UUID    `json:"payment_type_id,omitempty"`
	Status        string        `json:"status"`
	Version       int32         `json:"version"`
	CreatedAt     string        `json:"created_at"`
	CompletedAt   *string       `json:"completed_at,omitempty"`
	Items         []LineItemDto `json:"items,omitempty"`
}

type LineItemDto struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Seq       int64     `json:"seq"`
	CreatedAt string    `json:"created_at"`
}

// AddToCartResult is the added line and the availability hint at the time it was added.
type AddToCartResult struct {
	Item      LineItemDto `json:"item"`
	Available int64       `json:"available"`
}

type ProductAvailabilityDto struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Quantity  int32     `json:"quantity"`
	Active    bool      `json:"active"`
	Available int64     `json:"available"`
}

// FindByID retrieves an order by its ID and returns it as an OrderDto.
func (s *Service) FindByID(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*OrderDto, error) {
	order, items, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	} else if order.UserID != userID {
		return nil, ordererrors.ErrAccessDenied
	}

	return toDto(order, items), nil
}

// FindOrdersByUserID retrieves a page of the user's orders.
// Returns an empty slice if the user has no orders.
func (s *Service) FindOrdersByUserID(ctx context.Context, userID uuid.UUID, offset, limit int32) ([]OrderDto, error) {
	orders, err := s.orders.FindOrdersByUserID(ctx, &db.FindOrdersByUserIDParams{UserID: userID, Offset: offset, Limit: limit})
	if err != nil {
		return nil, err
	}
	dtos := make([]OrderDto, len(orders))
	for i := range orders {
		dtos[i] = *toDto(&orders[i], nil)
	}
	return dtos, nil
}

// toDto converts a db.Order and its line items to an OrderDto.
func toDto(order *db.Order, items []db.LineItem) *OrderDto {
	if order == nil {
		return nil
	}

	dto := &OrderDto{
		ID:            order.ID,
		UserID:        order.UserID,
		PaymentTypeID: order.PaymentTypeID,
		Status:        OrderStatusOpen,
		Version:       order.Version,
		CreatedAt:     order.CreatedAt.Format(time.RFC3339),
		Items:         toLineItemDtos(items),
	}
	if order.CompletedAt != nil {
		completedAt := order.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &completedAt
		dto.Status = OrderStatusCompleted
	}
	return dto
}

func toLineItemDto(item *db.LineItem) LineItemDto {
	return LineItemDto{
		ID:        item.ID,
		OrderID:   item.OrderID,
		ProductID: item.ProductID,
		Seq:       item.Seq,
		CreatedAt: item.CreatedAt.Format(time.RFC3339),
	}
}

func toLineItemDtos(items []db.LineItem) []LineItemDto {
	if items == nil {
		return nil
	}
	dtos := make([]LineItemDto, 0, len(items))
	for i := range items {
		dtos = append(dtos, toLineItemDto(&items[i]))
	}
	return dtos
}
