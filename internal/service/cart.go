package service

import (
	"context"
	"errors"
	"slices"

	ordererrors "github.com/bangazon/checkout/internal/errors"
	"github.com/bangazon/checkout/internal/store/db"
	"github.com/google/uuid"
)

// GetOrCreateOpenCart returns the user's open cart. A user has at most one.
func (s *Service) GetOrCreateOpenCart(ctx context.Context, userID uuid.UUID) (*OrderDto, error) {
	order, items, err := s.openCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toDto(order, items), nil
}

func (s *Service) openCart(ctx context.Context, userID uuid.UUID) (*db.Order, []db.LineItem, error) {
	order, items, err := s.orders.FindOpenOrderByUserID(ctx, userID)
	if err == nil {
		return order, items, nil
	}
	if !errors.Is(err, ordererrors.ErrOrderNotFound) {
		return nil, nil, err
	}

	order, err = s.orders.CreateOrder(ctx, userID)
	if err == nil {
		s.logger.DebugContext(ctx, "opened cart", "order_id", order.ID, "user_id", userID)
		return order, []db.LineItem{}, nil
	}
	if !errors.Is(err, ordererrors.ErrOpenOrderExists) {
		return nil, nil, err
	}
	// Another request opened the cart first.
	return s.orders.FindOpenOrderByUserID(ctx, userID)
}

func (s *Service) AddLineItem(ctx context.Context, cartID, productID uuid.UUID) (*LineItemDto, error) {
	item, err := s.orders.AddLineItem(ctx, cartID, productID)
	if err != nil {
		if errors.Is(err, ordererrors.ErrOrderNotFound) {
			return nil, ordererrors.ErrCartNotFound
		}
		return nil, err
	}
	dto := toLineItemDto(item)
	return &dto, nil
}

// AddToCart validates the product, appends one unit to the user's open cart and
// reports the availability at that moment. Availability is only a hint here;
// it is enforced at checkout.
func (s *Service) AddToCart(ctx context.Context, userID, productID uuid.UUID) (*AddToCartResult, error) {
	product, err := s.products.FindProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, ordererrors.ErrProductInactive
	}

	var item *db.LineItem
	for attempt := 1; ; attempt++ {
		cart, _, err := s.openCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		item, err = s.orders.AddLineItem(ctx, cart.ID, productID)
		if err == nil {
			break
		}
		// The cart was checked out between the lookup and the insert.
		if errors.Is(err, ordererrors.ErrAlreadyCompleted) && attempt < 2 {
			continue
		}
		return nil, err
	}

	available, err := s.availableFor(ctx, product)
	if err != nil {
		return nil, err
	}
	return &AddToCartResult{Item: toLineItemDto(item), Available: available}, nil
}

func (s *Service) RemoveFromCart(ctx context.Context, userID, lineItemID uuid.UUID) error {
	cart, items, err := s.orders.FindOpenOrderByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ordererrors.ErrOrderNotFound) {
			return ordererrors.ErrLineItemNotFound
		}
		return err
	}
	if !slices.ContainsFunc(items, func(li db.LineItem) bool { return li.ID == lineItemID }) {
		return ordererrors.ErrLineItemNotFound
	}
	return s.orders.RemoveLineItem(ctx, cart.ID, lineItemID)
}
