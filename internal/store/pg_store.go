package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	ordererrors "github.com/bangazon/checkout/internal/errors"
	"github.com/bangazon/checkout/internal/store/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation        = "23505"
	pgForeignKeyViolation    = "23503"
	pgSerializationFailure   = "40001"
	pgDeadlockDetected       = "40P01"
	openOrderUniqueIndexName = "orders_open_user_uidx"
)

// PgStore implements Store using PostgreSQL as the data store.
type PgStore struct {
	db *pgxpool.Pool
	q  *db.Queries
}

// NewPgStore creates a new instance of Store using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{
		db: dbp,
		q:  db.New(dbp),
	}
}

func (p *PgStore) FindProductByID(ctx context.Context, id uuid.UUID) (*db.Product, error) {
	product, err := p.q.FindProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ordererrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindProduct, err)
	}
	return &product, nil
}

func (p *PgStore) IsActivePaymentMethodOwnedBy(ctx context.Context, paymentTypeID, userID uuid.UUID) (bool, error) {
	owned, err := p.q.IsActivePaymentTypeOwnedBy(ctx, db.IsActivePaymentTypeOwnedByParams{
		ID:     paymentTypeID,
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindPaymentType, err)
	}
	return owned, nil
}

func (p *PgStore) FindOpenOrderByUserID(ctx context.Context, userID uuid.UUID) (*db.Order, []db.LineItem, error) {
	var order db.Order
	var items []db.LineItem

	txErr := p.withTransaction(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(qtx *db.Queries) error {
		var err error
		order, err = qtx.FindOpenOrderByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ordererrors.ErrOrderNotFound
			}
			return fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrder, err)
		}
		items, err = qtx.FindLineItemsByOrderID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindLineItems, err)
		}
		return nil
	})
	if txErr != nil {
		return nil, nil, txErr
	}

	return &order, items, nil
}

func (p *PgStore) CreateOrder(ctx context.Context, userID uuid.UUID) (*db.Order, error) {
	order, err := p.q.CreateOrder(ctx, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == openOrderUniqueIndexName {
			return nil, ordererrors.ErrOpenOrderExists
		}
		return nil, fmt.Errorf("%w: %w", ordererrors.ErrCreateOrder, err)
	}
	return &order, nil
}

func (p *PgStore) FindByID(ctx context.Context, id uuid.UUID) (*db.Order, []db.LineItem, error) {
	var order db.Order
	var items []db.LineItem

	// Use transaction to read the order and its line items from one snapshot
	txErr := p.withTransaction(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}, func(qtx *db.Queries) error {
		var err error
		order, err = qtx.FindOrderByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ordererrors.ErrOrderNotFound
			}
			return fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrder, err)
		}
		items, err = qtx.FindLineItemsByOrderID(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindLineItems, err)
		}
		return nil
	})
	if txErr != nil {
		return nil, nil, txErr
	}

	return &order, items, nil
}

func (p *PgStore) FindOrdersByUserID(ctx context.Context, params *db.FindOrdersByUserIDParams) ([]db.Order, error) {
	// No need for transaction here as we are making just one query to fetch orders
	orders, err := p.q.FindOrdersByUserID(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindUserOrders, err)
	}
	return orders, nil
}

func (p *PgStore) CountCompletedLineItems(ctx context.Context, productID uuid.UUID) (int64, error) {
	count, err := p.q.CountCompletedLineItemsByProductID(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ordererrors.ErrCountLineItems, err)
	}
	return count, nil
}

func (p *PgStore) AddLineItem(ctx context.Context, orderID, productID uuid.UUID) (*db.LineItem, error) {
	var item db.LineItem

	txErr := p.withTransaction(ctx, pgx.TxOptions{}, func(qtx *db.Queries) error {
		if err := touchOpenOrder(ctx, qtx, orderID); err != nil {
			return err
		}
		var err error
		item, err = qtx.CreateLineItem(ctx, db.CreateLineItemParams{OrderID: orderID, ProductID: productID})
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return ordererrors.ErrProductNotFound
			}
			return fmt.Errorf("%w: %w", ordererrors.ErrCreateLineItem, err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	return &item, nil
}

func (p *PgStore) RemoveLineItem(ctx context.Context, orderID, lineItemID uuid.UUID) error {
	return p.withTransaction(ctx, pgx.TxOptions{}, func(qtx *db.Queries) error {
		if err := touchOpenOrder(ctx, qtx, orderID); err != nil {
			return err
		}
		deleted, err := qtx.DeleteLineItems(ctx, db.DeleteLineItemsParams{OrderID: orderID, Ids: []uuid.UUID{lineItemID}})
		if err != nil {
			return fmt.Errorf("%w: %w", ordererrors.ErrDeleteLineItem, err)
		}
		if deleted == 0 {
			return ordererrors.ErrLineItemNotFound
		}
		return nil
	})
}

// Reconcile runs in a serializable transaction, so two checkouts claiming the
// last units of a product cannot both commit.
func (p *PgStore) Reconcile(ctx context.Context, params *ReconcileParams) (*db.Order, error) {
	var order db.Order

	txErr := p.withTransaction(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(qtx *db.Queries) error {
		if params.Completion != nil {
			if err := verifyClaims(ctx, qtx, params.Claims); err != nil {
				return err
			}
		}

		if len(params.RemoveLineItemIDs) > 0 {
			deleted, err := qtx.DeleteLineItems(ctx, db.DeleteLineItemsParams{
				OrderID: params.OrderID,
				Ids:     params.RemoveLineItemIDs,
			})
			if err != nil {
				return fmt.Errorf("%w: %w", ordererrors.ErrDeleteLineItem, err)
			}
			if deleted != int64(len(params.RemoveLineItemIDs)) {
				return ordererrors.ErrOptimisticLock
			}
		}

		var err error
		if params.Completion != nil {
			completedAt := params.Completion.CompletedAt
			paymentTypeID := params.Completion.PaymentTypeID
			order, err = qtx.CompleteOrder(ctx, db.CompleteOrderParams{
				ID:            params.OrderID,
				CompletedAt:   &completedAt,
				PaymentTypeID: &paymentTypeID,
				Version:       params.Version,
			})
		} else {
			order, err = qtx.BumpOrderVersion(ctx, db.BumpOrderVersionParams{
				ID:      params.OrderID,
				Version: params.Version,
			})
		}
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Check if the order exists, or it's an optimistic lock error.
				if _, err := qtx.FindOrderByID(ctx, params.OrderID); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return ordererrors.ErrOrderNotFound
					}
					return fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrder, err)
				}
				return ordererrors.ErrOptimisticLock
			}
			return fmt.Errorf("%w: %w", ordererrors.ErrUpdateOrder, err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	return &order, nil
}

func verifyClaims(ctx context.Context, qtx *db.Queries, claims map[uuid.UUID]int64) error {
	productIDs := slices.SortedFunc(maps.Keys(claims), func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	for _, productID := range productIDs {
		product, err := qtx.FindProductByID(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ordererrors.ErrProductNotFound
			}
			return fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindProduct, err)
		}
		completed, err := qtx.CountCompletedLineItemsByProductID(ctx, productID)
		if err != nil {
			return fmt.Errorf("%w: %w", ordererrors.ErrCountLineItems, err)
		}
		if !product.Active || int64(product.Quantity)-completed < claims[productID] {
			return fmt.Errorf("%w: product %s", ordererrors.ErrInsufficientStock, productID)
		}
	}
	return nil
}

func touchOpenOrder(ctx context.Context, qtx *db.Queries, orderID uuid.UUID) error {
	_, err := qtx.TouchOpenOrder(ctx, orderID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ordererrors.ErrUpdateOrder, err)
	}
	if _, err := qtx.FindOrderByID(ctx, orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ordererrors.ErrOrderNotFound
		}
		return fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrder, err)
	}
	return ordererrors.ErrAlreadyCompleted
}

func (p *PgStore) withTransaction(ctx context.Context, opts pgx.TxOptions, fn func(qtx *db.Queries) error) error {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ordererrors.ErrTransactionBegin, err)
	}
	qtx := p.q.WithTx(tx)

	err = fn(qtx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w: %w", ordererrors.ErrTransactionRollback, rbErr)
		}
		return mapConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		if mapped := mapConflict(err); errors.Is(mapped, ordererrors.ErrOptimisticLock) {
			return mapped
		}
		return fmt.Errorf("%w: %w", ordererrors.ErrTransactionCommit, err)
	}

	return nil
}

// mapConflict turns serialization failures and deadlocks into ErrOptimisticLock.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %w", ordererrors.ErrOptimisticLock, err)
	}
	return err
}
