package service

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	ordererrors "github.com/bangazon/checkout/internal/errors"
	"github.com/bangazon/checkout/internal/store"
	"github.com/bangazon/checkout/internal/store/db"
	"github.com/bangazon/checkout/pkg/messaging/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type CheckoutStatus string

const (
	// StatusFinalized means the cart became a completed order.
	StatusFinalized CheckoutStatus = "finalized"
	// StatusStillOpen means every line was removed, or the cart was empty, and the cart stays open.
	StatusStillOpen CheckoutStatus = "still_open"
)

// CheckoutResult is the outcome of a successful checkout.
// Removed lists the line items dropped for lack of stock, grouped by product
// in ascending product id order, most recently added first within a product.
type CheckoutResult struct {
	Status  CheckoutStatus `json:"status"`
	Order   OrderDto       `json:"order"`
	Removed []LineItemDto  `json:"removed"`
	// Total is the price of the finalized order in cents.
	Total int64 `json:"total"`

	completedAt time.Time
}

// Checkout converts the user's open cart into a completed order paid with paymentTypeID.
// Lines that exceed the current availability of their product are removed first.
//
// Errors: ErrCartNotFound, ErrAlreadyCompleted, ErrInvalidPaymentMethod, and
// ErrConcurrencyConflict when every attempt lost to a concurrent write.
func (s *Service) Checkout(ctx context.Context, userID, cartID, paymentTypeID uuid.UUID) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "Checkout", trace.WithAttributes(
		attribute.String("order.id", cartID.String()),
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err := s.checkoutAttempt(ctx, userID, cartID, paymentTypeID)
		if err == nil {
			span.SetAttributes(
				attribute.String("checkout.status", string(result.Status)),
				attribute.Int("checkout.removed", len(result.Removed)),
				attribute.Int("checkout.attempts", attempt),
			)
			s.recordOutcome(ctx, result)
			return result, nil
		}
		if !isConflict(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		s.conflictCounter.Add(ctx, 1)
		s.logger.InfoContext(ctx, "checkout lost to a concurrent write",
			"order_id", cartID, "attempt", attempt, "error", err)
	}

	span.SetStatus(codes.Error, ordererrors.ErrConcurrencyConflict.Error())
	return nil, ordererrors.ErrConcurrencyConflict
}

func isConflict(err error) bool {
	return errors.Is(err, ordererrors.ErrOptimisticLock) || errors.Is(err, ordererrors.ErrInsufficientStock)
}

// checkoutAttempt reads the cart, decides the removals from fresh availability and
// writes the outcome guarded by the version it read.
func (s *Service) checkoutAttempt(ctx context.Context, userID, cartID, paymentTypeID uuid.UUID) (*CheckoutResult, error) {
	order, items, err := s.orders.FindByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, ordererrors.ErrOrderNotFound) {
			return nil, ordererrors.ErrCartNotFound
		}
		return nil, err
	}
	if order.UserID != userID {
		return nil, ordererrors.ErrCartNotFound
	}
	if order.CompletedAt != nil {
		return nil, ordererrors.ErrAlreadyCompleted
	}
	owned, err := s.payments.IsActivePaymentMethodOwnedBy(ctx, paymentTypeID, userID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ordererrors.ErrInvalidPaymentMethod
	}

	available, prices, err := s.availabilityOf(ctx, items)
	if err != nil {
		return nil, err
	}
	plan := planReconciliation(items, available)

	if len(plan.kept) == 0 && len(plan.removed) == 0 {
		return &CheckoutResult{Status: StatusStillOpen, Order: *toDto(order, items), Removed: []LineItemDto{}}, nil
	}

	params := &store.ReconcileParams{
		OrderID:           order.ID,
		Version:           order.Version,
		RemoveLineItemIDs: plan.removedIDs(),
	}
	status := StatusStillOpen
	if len(plan.kept) > 0 {
		status = StatusFinalized
		params.Claims = plan.claims
		params.Completion = &store.Completion{PaymentTypeID: paymentTypeID, CompletedAt: s.now().UTC()}
	}

	updated, err := s.orders.Reconcile(ctx, params)
	if err != nil {
		if errors.Is(err, ordererrors.ErrOrderNotFound) {
			return nil, ordererrors.ErrCartNotFound
		}
		return nil, err
	}

	var total int64
	for _, item := range plan.kept {
		total += prices[item.ProductID]
	}
	result := &CheckoutResult{
		Status:  status,
		Order:   *toDto(updated, plan.kept),
		Removed: toLineItemDtos(plan.removed),
		Total:   total,
	}
	if updated.CompletedAt != nil {
		result.completedAt = updated.CompletedAt.UTC()
	}
	return result, nil
}

// availabilityOf computes the checkout availability and unit price of every product in the cart.
func (s *Service) availabilityOf(ctx context.Context, items []db.LineItem) (map[uuid.UUID]int64, map[uuid.UUID]int64, error) {
	available := make(map[uuid.UUID]int64)
	prices := make(map[uuid.UUID]int64)
	for _, productID := range productOrder(items) {
		product, err := s.products.FindProductByID(ctx, productID)
		if errors.Is(err, ordererrors.ErrProductNotFound) {
			available[productID] = 0
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if available[productID], err = s.checkoutAvailable(ctx, product); err != nil {
			return nil, nil, err
		}
		prices[productID] = product.Price
	}
	return available, prices, nil
}

type reconcilePlan struct {
	// kept stays in insertion order.
	kept    []db.LineItem
	removed []db.LineItem
	claims  map[uuid.UUID]int64
}

func (p reconcilePlan) removedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(p.removed))
	for i, item := range p.removed {
		ids[i] = item.ID
	}
	return ids
}

// planReconciliation trims every product down to its availability, dropping the
// most recently added lines first. It is deterministic for a given input.
func planReconciliation(items []db.LineItem, available map[uuid.UUID]int64) reconcilePlan {
	byProduct := make(map[uuid.UUID][]db.LineItem)
	for _, item := range items {
		byProduct[item.ProductID] = append(byProduct[item.ProductID], item)
	}
	for _, lines := range byProduct {
		slices.SortStableFunc(lines, func(a, b db.LineItem) int { return cmp.Compare(a.Seq, b.Seq) })
	}

	plan := reconcilePlan{removed: []db.LineItem{}, claims: make(map[uuid.UUID]int64)}
	dropped := make(map[uuid.UUID]struct{})
	for _, productID := range slices.SortedFunc(maps.Keys(byProduct), compareUUID) {
		lines := byProduct[productID]
		excess := int64(len(lines)) - max(available[productID], 0)
		for i := len(lines) - 1; excess > 0; i, excess = i-1, excess-1 {
			plan.removed = append(plan.removed, lines[i])
			dropped[lines[i].ID] = struct{}{}
		}
	}

	for _, item := range items {
		if _, ok := dropped[item.ID]; ok {
			continue
		}
		plan.kept = append(plan.kept, item)
		plan.claims[item.ProductID]++
	}
	return plan
}

func productOrder(items []db.LineItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		seen[item.ProductID] = struct{}{}
	}
	return slices.SortedFunc(maps.Keys(seen), compareUUID)
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// recordOutcome updates the counters and publishes the checkout event. Failures are logged only.
func (s *Service) recordOutcome(ctx context.Context, result *CheckoutResult) {
	s.removedCounter.Add(ctx, int64(len(result.Removed)))

	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	var err error
	switch result.Status {
	case StatusFinalized:
		s.finalizedCounter.Add(ctx, 1)
		productIDs := make([]uuid.UUID, 0, len(result.Order.Items))
		for _, item := range result.Order.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		event := events.OrderCompletedEvent{
			Carrier:      carrier,
			OrderID:      result.Order.ID,
			UserID:       result.Order.UserID,
			ProductIDs:   productIDs,
			TotalPrice:   result.Total,
			RemovedCount: len(result.Removed),
			CompletedAt:  result.completedAt,
		}
		if result.Order.PaymentTypeID != nil {
			event.PaymentTypeID = *result.Order.PaymentTypeID
		}
		err = s.publisher.Publish(ctx, event)
	case StatusStillOpen:
		s.stillOpenCounter.Add(ctx, 1)
		if len(result.Removed) == 0 {
			return
		}
		event := events.CartItemsRemovedEvent{
			Carrier:    carrier,
			OrderID:    result.Order.ID,
			UserID:     result.Order.UserID,
			OccurredAt: s.now().UTC(),
		}
		for _, item := range result.Removed {
			event.RemovedLineItems = append(event.RemovedLineItems, item.ID)
			event.RemovedProductIDs = append(event.RemovedProductIDs, item.ProductID)
		}
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout event", "order_id", result.Order.ID, "error", err)
	}
}
