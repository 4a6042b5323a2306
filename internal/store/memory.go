package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	ordererrors "github.com/bangazon/checkout/internal/errors"
	"github.com/bangazon/checkout/internal/store/db"
	"github.com/google/uuid"
)

// MemoryStore implements Store using in-memory maps.
// A single mutex serializes writers, which gives Reconcile the same
// all-or-nothing behavior as the serializable transaction of PgStore.
type MemoryStore struct {
	mu           sync.RWMutex
	products     map[uuid.UUID]db.Product
	paymentTypes map[uuid.UUID]db.PaymentType
	orders       map[uuid.UUID]db.Order
	lineItems    map[uuid.UUID][]db.LineItem
	nextSeq      int64
	now          func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:     make(map[uuid.UUID]db.Product),
		paymentTypes: make(map[uuid.UUID]db.PaymentType),
		orders:       make(map[uuid.UUID]db.Order),
		lineItems:    make(map[uuid.UUID][]db.LineItem),
		nextSeq:      1,
		now:          time.Now,
	}
}

// PutProduct inserts or replaces a catalog product.
func (s *MemoryStore) PutProduct(product db.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}
	s.products[product.ID] = product
}

// PutPaymentType inserts or replaces a payment type.
func (s *MemoryStore) PutPaymentType(paymentType db.PaymentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paymentType.CreatedAt.IsZero() {
		paymentType.CreatedAt = s.now()
	}
	s.paymentTypes[paymentType.ID] = paymentType
}

func (s *MemoryStore) FindProductByID(_ context.Context, id uuid.UUID) (*db.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, ordererrors.ErrProductNotFound
	}
	return &product, nil
}

func (s *MemoryStore) IsActivePaymentMethodOwnedBy(_ context.Context, paymentTypeID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pt, ok := s.paymentTypes[paymentTypeID]
	return ok && pt.Active && pt.UserID == userID, nil
}

func (s *MemoryStore) FindOpenOrderByUserID(_ context.Context, userID uuid.UUID) (*db.Order, []db.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.orders {
		if order.UserID == userID && order.CompletedAt == nil {
			return &order, slices.Clone(s.lineItems[order.ID]), nil
		}
	}
	return nil, nil, ordererrors.ErrOrderNotFound
}

func (s *MemoryStore) CreateOrder(_ context.Context, userID uuid.UUID) (*db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, order := range s.orders {
		if order.UserID == userID && order.CompletedAt == nil {
			return nil, ordererrors.ErrOpenOrderExists
		}
	}
	order := db.Order{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: s.now(),
		Version:   1,
	}
	s.orders[order.ID] = order
	return &order, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*db.Order, []db.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, nil, ordererrors.ErrOrderNotFound
	}
	return &order, slices.Clone(s.lineItems[id]), nil
}

func (s *MemoryStore) FindOrdersByUserID(_ context.Context, params *db.FindOrdersByUserIDParams) ([]db.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]db.Order, 0)
	for _, order := range s.orders {
		if order.UserID == params.UserID {
			orders = append(orders, order)
		}
	}
	slices.SortFunc(orders, func(a, b db.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start := min(int(params.Offset), len(orders))
	end := min(start+int(params.Limit), len(orders))
	return orders[start:end], nil
}

func (s *MemoryStore) CountCompletedLineItems(_ context.Context, productID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countCompleted(productID), nil
}

func (s *MemoryStore) AddLineItem(_ context.Context, orderID, productID uuid.UUID) (*db.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.touchOpenOrder(orderID); err != nil {
		return nil, err
	}
	if _, ok := s.products[productID]; !ok {
		return nil, ordererrors.ErrProductNotFound
	}
	item := db.LineItem{
		ID:        uuid.New(),
		Seq:       s.nextSeq,
		OrderID:   orderID,
		ProductID: productID,
		CreatedAt: s.now(),
	}
	s.nextSeq++
	s.lineItems[orderID] = append(s.lineItems[orderID], item)
	return &item, nil
}

func (s *MemoryStore) RemoveLineItem(_ context.Context, orderID, lineItemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.lineItems[orderID]
	idx := slices.IndexFunc(items, func(li db.LineItem) bool { return li.ID == lineItemID })
	order, ok := s.orders[orderID]
	switch {
	case !ok:
		return ordererrors.ErrOrderNotFound
	case order.CompletedAt != nil:
		return ordererrors.ErrAlreadyCompleted
	case idx < 0:
		return ordererrors.ErrLineItemNotFound
	}
	s.lineItems[orderID] = slices.Delete(slices.Clone(items), idx, idx+1)
	return s.touchOpenOrder(orderID)
}

func (s *MemoryStore) Reconcile(_ context.Context, params *ReconcileParams) (*db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[params.OrderID]
	if !ok {
		return nil, ordererrors.ErrOrderNotFound
	}
	if order.Version != params.Version || order.CompletedAt != nil {
		return nil, ordererrors.ErrOptimisticLock
	}

	if params.Completion != nil {
		for productID, claimed := range params.Claims {
			product, ok := s.products[productID]
			if !ok {
				return nil, ordererrors.ErrProductNotFound
			}
			if !product.Active || int64(product.Quantity)-s.countCompleted(productID) < claimed {
				return nil, fmt.Errorf("%w: product %s", ordererrors.ErrInsufficientStock, productID)
			}
		}
	}

	items := s.lineItems[params.OrderID]
	kept := make([]db.LineItem, 0, len(items))
	for _, item := range items {
		if !slices.Contains(params.RemoveLineItemIDs, item.ID) {
			kept = append(kept, item)
		}
	}
	if len(items)-len(kept) != len(params.RemoveLineItemIDs) {
		return nil, ordererrors.ErrOptimisticLock
	}

	if params.Completion != nil {
		completedAt := params.Completion.CompletedAt
		paymentTypeID := params.Completion.PaymentTypeID
		order.CompletedAt = &completedAt
		order.PaymentTypeID = &paymentTypeID
	}
	order.Version++
	s.orders[order.ID] = order
	s.lineItems[order.ID] = kept
	return &order, nil
}

// touchOpenOrder bumps the version of an open order. Callers hold the write lock.
func (s *MemoryStore) touchOpenOrder(orderID uuid.UUID) error {
	order, ok := s.orders[orderID]
	if !ok {
		return ordererrors.ErrOrderNotFound
	}
	if order.CompletedAt != nil {
		return ordererrors.ErrAlreadyCompleted
	}
	order.Version++
	s.orders[orderID] = order
	return nil
}

func (s *MemoryStore) countCompleted(productID uuid.UUID) int64 {
	var count int64
	for orderID, items := range s.lineItems {
		if s.orders[orderID].CompletedAt == nil {
			continue
		}
		for _, item := range items {
			if item.ProductID == productID {
				count++
			}
		}
	}
	return count
}

