package service

import (
	"context"

	"github.com/bangazon/checkout/internal/store/db"
	"github.com/google/uuid"
)

// Available returns the product's base quantity minus the units held by completed orders.
// Open carts never reserve stock, so they are not counted.
func (s *Service) Available(ctx context.Context, productID uuid.UUID) (int64, error) {
	product, err := s.products.FindProductByID(ctx, productID)
	if err != nil {
		return 0, err
	}
	return s.availableFor(ctx, product)
}

func (s *Service) ProductAvailability(ctx context.Context, productID uuid.UUID) (*ProductAvailabilityDto, error) {
	product, err := s.products.FindProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	available, err := s.availableFor(ctx, product)
	if err != nil {
		return nil, err
	}
	return &ProductAvailabilityDto{
		ID:        product.ID,
		Title:     product.Title,
		Price:     product.Price,
		Quantity:  product.Quantity,
		Active:    product.Active,
		Available: available,
	}, nil
}

func (s *Service) availableFor(ctx context.Context, product *db.Product) (int64, error) {
	completed, err := s.orders.CountCompletedLineItems(ctx, product.ID)
	if err != nil {
		return 0, err
	}
	available := int64(product.Quantity) - completed
	if available < 0 {
		// The catalog lowered the base quantity below what was already sold.
		s.logger.WarnContext(ctx, "negative availability clamped to zero",
			"product_id", product.ID, "quantity", product.Quantity, "completed", completed)
		available = 0
	}
	return available, nil
}

// checkoutAvailable is the availability used to reconcile a cart. Inactive products have none.
func (s *Service) checkoutAvailable(ctx context.Context, product *db.Product) (int64, error) {
	if !product.Active {
		return 0, nil
	}
	return s.availableFor(ctx, product)
}
