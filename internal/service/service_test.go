package service

import (
	"context"
	"errors"
	"testing"
	"time"

	ordererrors "github.com/bangazon/checkout/internal/errors"
	"github.com/bangazon/checkout/internal/store"
	"github.com/bangazon/checkout/internal/store/db"
	"github.com/bangazon/checkout/pkg/messaging/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("connection refused")

func Test_CheckoutService_FindByID(t *testing.T) {
	testCases := []struct {
		name        string
		foreign     bool
		unknown     bool
		expectError error
	}{
		{name: "Success - order found"},
		{name: "Error - order not found", unknown: true, expectError: ordererrors.ErrOrderNotFound},
		{name: "Error - access denied", foreign: true, expectError: ordererrors.ErrAccessDenied},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			productID := f.product(5, true)
			userID, cart := f.cart(t, productID)
			orderID := cart.ID
			if tc.unknown {
				orderID = uuid.New()
			}
			if tc.foreign {
				userID = uuid.New()
			}

			// when
			found, err := f.service.FindByID(context.Background(), userID, orderID)

			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, found)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, cart.ID, found.ID)
			assert.Equal(t, OrderStatusOpen, found.Status)
			require.Len(t, found.Items, 1)
			assert.Equal(t, productID, found.Items[0].ProductID)
		})
	}
}

func Test_CheckoutService_FindOrdersByUserID(t *testing.T) {
	// given
	f := newFixture(t)
	productID := f.product(5, true)
	userID, cart := f.cart(t, productID)
	paymentTypeID := f.paymentType(userID, true)
	_, err := f.service.Checkout(context.Background(), userID, cart.ID, paymentTypeID)
	require.NoError(t, err)
	_, err = f.service.GetOrCreateOpenCart(context.Background(), userID)
	require.NoError(t, err)

	// when
	orders, err := f.service.FindOrdersByUserID(context.Background(), userID, 0, 10)

	// then
	require.NoError(t, err)
	require.Len(t, orders, 2)
	statuses := map[string]bool{}
	for _, o := range orders {
		statuses[o.Status] = true
	}
	assert.True(t, statuses[OrderStatusOpen])
	assert.True(t, statuses[OrderStatusCompleted])

	none, err := f.service.FindOrdersByUserID(context.Background(), uuid.New(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func Test_CheckoutService_Available(t *testing.T) {
	testCases := []struct {
		name        string
		quantity    int32
		sold        int
		lowerTo     *int32
		countErr    error
		unknown     bool
		expected    int64
		expectError error
	}{
		{name: "nothing sold", quantity: 3, expected: 3},
		{name: "partly sold", quantity: 3, sold: 2, expected: 1},
		{name: "open carts do not count", quantity: 3, expected: 3},
		{name: "stock lowered below sold units clamps to zero", quantity: 3, sold: 3, lowerTo: ptr(int32(1)), expected: 0},
		{name: "unknown product", unknown: true, expectError: ordererrors.ErrProductNotFound},
		{name: "store failure propagates", quantity: 3, countErr: errStoreDown, expectError: errStoreDown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			ctx := context.Background()
			f := newFixture(t)
			productID := f.product(tc.quantity, true)
			if tc.sold > 0 {
				userID, cart := f.cart(t, repeat(productID, tc.sold)...)
				_, err := f.service.Checkout(ctx, userID, cart.ID, f.paymentType(userID, true))
				require.NoError(t, err)
			}
			// an open cart holding units must not change availability
			f.cart(t, productID, productID)
			if tc.lowerTo != nil {
				f.store.PutProduct(db.Product{ID: productID, Title: "Widget", Quantity: *tc.lowerTo, Active: true})
			}
			if tc.unknown {
				productID = uuid.New()
			}
			f.store.countErr = tc.countErr

			// when
			available, err := f.service.Available(ctx, productID)

			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, available)
		})
	}
}

func Test_CheckoutService_ProductAvailability(t *testing.T) {
	// given
	f := newFixture(t)
	productID := f.product(4, false)

	// when
	dto, err := f.service.ProductAvailability(context.Background(), productID)

	// then
	require.NoError(t, err)
	assert.Equal(t, productID, dto.ID)
	assert.Equal(t, int32(4), dto.Quantity)
	assert.Equal(t, int64(4), dto.Available)
	assert.False(t, dto.Active)
}

func Test_CheckoutService_GetOrCreateOpenCart(t *testing.T) {
	t.Run("returns the existing cart", func(t *testing.T) {
		// given
		f := newFixture(t)
		userID, cart := f.cart(t)

		// when
		again, err := f.service.GetOrCreateOpenCart(context.Background(), userID)

		// then
		require.NoError(t, err)
		assert.Equal(t, cart.ID, again.ID)
		assert.Nil(t, again.PaymentTypeID)
		assert.Nil(t, again.CompletedAt)
	})

	t.Run("re-reads when another request created the cart first", func(t *testing.T) {
		// given
		f := newFixture(t)
		userID := uuid.New()
		winner, err := f.store.MemoryStore.CreateOrder(context.Background(), userID)
		require.NoError(t, err)
		f.store.hideOpenOnce = true

		// when
		cart, err := f.service.GetOrCreateOpenCart(context.Background(), userID)

		// then
		require.NoError(t, err)
		assert.Equal(t, winner.ID, cart.ID)
	})

	t.Run("propagates store failures", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.store.createOrderErr = errStoreDown

		// when
		cart, err := f.service.GetOrCreateOpenCart(context.Background(), uuid.New())

		// then
		assert.ErrorIs(t, err, errStoreDown)
		assert.Nil(t, cart)
	})
}

func Test_CheckoutService_AddToCart(t *testing.T) {
	testCases := []struct {
		name        string
		active      bool
		unknown     bool
		completed   bool
		expectError error
	}{
		{name: "adds to a new cart", active: true},
		{name: "inactive product", active: false, expectError: ordererrors.ErrProductInactive},
		{name: "unknown product", active: true, unknown: true, expectError: ordererrors.ErrProductNotFound},
		{name: "previous cart completed", active: true, completed: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			ctx := context.Background()
			f := newFixture(t)
			productID := f.product(2, tc.active)
			userID := uuid.New()
			if tc.completed {
				other := f.product(1, true)
				cart, err := f.service.GetOrCreateOpenCart(ctx, userID)
				require.NoError(t, err)
				_, err = f.service.AddLineItem(ctx, cart.ID, other)
				require.NoError(t, err)
				_, err = f.service.Checkout(ctx, userID, cart.ID, f.paymentType(userID, true))
				require.NoError(t, err)
			}
			if tc.unknown {
				productID = uuid.New()
			}

			// when
			result, err := f.service.AddToCart(ctx, userID, productID)

			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, productID, result.Item.ProductID)
			assert.Equal(t, int64(2), result.Available, "adding to a cart does not reserve stock")

			cart, err := f.service.GetOrCreateOpenCart(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, result.Item.OrderID, cart.ID)
			require.Len(t, cart.Items, 1)
		})
	}
}

func Test_CheckoutService_AddToCartRetriesOnCompletedCart(t *testing.T) {
	testCases := []struct {
		name        string
		addErrs     []error
		expectError error
	}{
		{name: "cart completed between lookup and insert", addErrs: []error{ordererrors.ErrAlreadyCompleted}},
		{name: "gives up after one retry", addErrs: []error{ordererrors.ErrAlreadyCompleted, ordererrors.ErrAlreadyCompleted}, expectError: ordererrors.ErrAlreadyCompleted},
		{name: "other failures are not retried", addErrs: []error{errStoreDown}, expectError: errStoreDown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			productID := f.product(1, true)
			f.store.addLineItemErrs = tc.addErrs

			// when
			result, err := f.service.AddToCart(context.Background(), uuid.New(), productID)

			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, f.store.addLineItemErrs)
			assert.Equal(t, productID, result.Item.ProductID)
		})
	}
}

func Test_CheckoutService_AddLineItem(t *testing.T) {
	// given
	ctx := context.Background()
	f := newFixture(t)
	productID := f.product(0, true)
	_, cart := f.cart(t)

	// when
	item, err := f.service.AddLineItem(ctx, cart.ID, productID)

	// then
	require.NoError(t, err, "availability is not checked when adding")
	assert.Equal(t, cart.ID, item.OrderID)

	_, err = f.service.AddLineItem(ctx, uuid.New(), productID)
	assert.ErrorIs(t, err, ordererrors.ErrCartNotFound)
}

func Test_CheckoutService_RemoveFromCart(t *testing.T) {
	// given
	ctx := context.Background()
	f := newFixture(t)
	productID := f.product(3, true)
	userID, cart := f.cart(t, productID, productID)

	// when
	err := f.service.RemoveFromCart(ctx, userID, cart.Items[0].ID)

	// then
	require.NoError(t, err)
	after, err := f.service.GetOrCreateOpenCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, after.Items, 1)
	assert.Equal(t, cart.Items[1].ID, after.Items[0].ID)
	assert.Greater(t, after.Version, cart.Version)

	assert.ErrorIs(t, f.service.RemoveFromCart(ctx, userID, cart.Items[0].ID), ordererrors.ErrLineItemNotFound)
	assert.ErrorIs(t, f.service.RemoveFromCart(ctx, uuid.New(), cart.Items[1].ID), ordererrors.ErrLineItemNotFound,
		"a line of another user's cart is not found")
}

func Test_CheckoutService_CheckoutPreconditions(t *testing.T) {
	testCases := []struct {
		name          string
		unknownCart   bool
		foreignUser   bool
		completed     bool
		paymentOwner  string
		paymentActive bool
		findErr       error
		paymentErr    error
		expectError   error
	}{
		{name: "unknown cart", unknownCart: true, paymentOwner: "self", paymentActive: true, expectError: ordererrors.ErrCartNotFound},
		{name: "cart of another user", foreignUser: true, paymentOwner: "self", paymentActive: true, expectError: ordererrors.ErrCartNotFound},
		{name: "already completed", completed: true, paymentOwner: "self", paymentActive: true, expectError: ordererrors.ErrAlreadyCompleted},
		{name: "already completed wins over a bad payment method", completed: true, paymentOwner: "other", expectError: ordererrors.ErrAlreadyCompleted},
		{name: "payment method of another user", paymentOwner: "other", paymentActive: true, expectError: ordererrors.ErrInvalidPaymentMethod},
		{name: "inactive payment method", paymentOwner: "self", paymentActive: false, expectError: ordererrors.ErrInvalidPaymentMethod},
		{name: "unknown payment method", paymentOwner: "none", expectError: ordererrors.ErrInvalidPaymentMethod},
		{name: "store unavailable", findErr: errStoreDown, paymentOwner: "self", paymentActive: true, expectError: errStoreDown},
		{name: "payment lookup unavailable", paymentErr: errStoreDown, paymentOwner: "self", paymentActive: true, expectError: errStoreDown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			ctx := context.Background()
			f := newFixture(t)
			productID := f.product(5, true)
			userID, cart := f.cart(t, productID)
			var paymentTypeID uuid.UUID
			switch tc.paymentOwner {
			case "self":
				paymentTypeID = f.paymentType(userID, tc.paymentActive)
			case "other":
				paymentTypeID = f.paymentType(uuid.New(), tc.paymentActive)
			default:
				paymentTypeID = uuid.New()
			}
			if tc.completed {
				_, err := f.service.Checkout(ctx, userID, cart.ID, f.paymentType(userID, true))
				require.NoError(t, err)
			}
			cartID, callerID := cart.ID, userID
			if tc.unknownCart {
				cartID = uuid.New()
			}
			if tc.foreignUser {
				callerID = uuid.New()
			}
			f.store.findByIDErr = tc.findErr
			f.store.paymentErr = tc.paymentErr
			eventsBefore := len(f.publisher.published())

			// when
			result, err := f.service.Checkout(ctx, callerID, cartID, paymentTypeID)

			// then
			assert.ErrorIs(t, err, tc.expectError)
			assert.Nil(t, result)
			assert.Len(t, f.publisher.published(), eventsBefore, "no event on a failed checkout")
			f.store.findByIDErr = nil
			after, _, err := f.store.FindByID(ctx, cart.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.completed, after.CompletedAt != nil)
		})
	}
}

func Test_CheckoutService_CheckoutRetriesConflicts(t *testing.T) {
	testCases := []struct {
		name          string
		maxAttempts   int
		reconcileErrs []error
		expectedCalls int
		expectError   error
	}{
		{name: "first attempt wins", maxAttempts: 2, expectedCalls: 1},
		{name: "version conflict then success", maxAttempts: 2, reconcileErrs: []error{ordererrors.ErrOptimisticLock}, expectedCalls: 2},
		{name: "claim conflict then success", maxAttempts: 2, reconcileErrs: []error{ordererrors.ErrInsufficientStock}, expectedCalls: 2},
		{
			name:          "attempts exhausted",
			maxAttempts:   2,
			reconcileErrs: []error{ordererrors.ErrOptimisticLock, ordererrors.ErrOptimisticLock},
			expectedCalls: 2,
			expectError:   ordererrors.ErrConcurrencyConflict,
		},
		{
			name:          "more attempts configured",
			maxAttempts:   4,
			reconcileErrs: []error{ordererrors.ErrOptimisticLock, ordererrors.ErrOptimisticLock, ordererrors.ErrOptimisticLock},
			expectedCalls: 4,
		},
		{
			name:          "storage failure is not retried",
			maxAttempts:   3,
			reconcileErrs: []error{errStoreDown},
			expectedCalls: 1,
			expectError:   errStoreDown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			f := newFixture(t)
			f.service = NewService(f.store, f.publisher, testLogger, Options{MaxAttempts: tc.maxAttempts})
			productID := f.product(5, true)
			userID, cart := f.cart(t, productID)
			f.store.reconcileErrs = tc.reconcileErrs

			// when
			result, err := f.service.Checkout(context.Background(), userID, cart.ID, f.paymentType(userID, true))

			// then
			assert.Equal(t, tc.expectedCalls, f.store.reconcileCalls)
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusFinalized, result.Status)
		})
	}
}

func Test_CheckoutService_CheckoutEmptyCart(t *testing.T) {
	// given
	f := newFixture(t)
	userID, cart := f.cart(t)

	// when
	result, err := f.service.Checkout(context.Background(), userID, cart.ID, f.paymentType(userID, true))

	// then
	require.NoError(t, err)
	assert.Equal(t, StatusStillOpen, result.Status)
	assert.Empty(t, result.Removed)
	assert.Equal(t, cart.Version, result.Order.Version, "nothing to write")
	assert.Zero(t, f.store.reconcileCalls)
	assert.Empty(t, f.publisher.published())
}

func Test_CheckoutService_CheckoutInactiveProduct(t *testing.T) {
	// given
	ctx := context.Background()
	f := newFixture(t)
	active := f.product(5, true)
	retired := f.product(5, true)
	userID, cart := f.cart(t, active, retired)
	f.store.PutProduct(db.Product{ID: retired, Title: "Widget", Price: 1250, Quantity: 5, Active: false})

	// when
	result, err := f.service.Checkout(ctx, userID, cart.ID, f.paymentType(userID, true))

	// then
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, result.Status)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, retired, result.Removed[0].ProductID)
	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, active, result.Order.Items[0].ProductID)
	assert.Equal(t, int64(1250), result.Total)
}

func Test_CheckoutService_CheckoutPublishesEvents(t *testing.T) {
	t.Run("finalized", func(t *testing.T) {
		// given
		f := newFixture(t)
		productID := f.product(1, true)
		userID, cart := f.cart(t, productID, productID)
		paymentTypeID := f.paymentType(userID, true)

		// when
		result, err := f.service.Checkout(context.Background(), userID, cart.ID, paymentTypeID)

		// then
		require.NoError(t, err)
		published := f.publisher.published()
		require.Len(t, published, 1)
		event, ok := published[0].(events.OrderCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, cart.ID, event.OrderID)
		assert.Equal(t, paymentTypeID, event.PaymentTypeID)
		assert.Equal(t, []uuid.UUID{productID}, event.ProductIDs)
		assert.Equal(t, 1, event.RemovedCount)
		assert.Equal(t, result.Total, event.TotalPrice)
	})

	t.Run("still open", func(t *testing.T) {
		// given
		f := newFixture(t)
		productID := f.product(0, true)
		userID, cart := f.cart(t, productID)

		// when
		_, err := f.service.Checkout(context.Background(), userID, cart.ID, f.paymentType(userID, true))

		// then
		require.NoError(t, err)
		published := f.publisher.published()
		require.Len(t, published, 1)
		event, ok := published[0].(events.CartItemsRemovedEvent)
		require.True(t, ok)
		assert.Equal(t, []uuid.UUID{cart.Items[0].ID}, event.RemovedLineItems)
		assert.Equal(t, []uuid.UUID{productID}, event.RemovedProductIDs)
	})

	t.Run("publish failure does not fail the checkout", func(t *testing.T) {
		// given
		f := newFixture(t)
		f.publisher.err = errors.New("nats: no responders available for request")
		productID := f.product(1, true)
		userID, cart := f.cart(t, productID)

		// when
		result, err := f.service.Checkout(context.Background(), userID, cart.ID, f.paymentType(userID, true))

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusFinalized, result.Status)
	})
}

func Test_CheckoutService_CheckoutUsesClock(t *testing.T) {
	// given
	fixed := time.Date(2025, 6, 30, 18, 45, 0, 0, time.UTC)
	f := newFixture(t)
	f.service = NewService(f.store, f.publisher, testLogger, Options{Now: func() time.Time { return fixed }})
	productID := f.product(1, true)
	userID, cart := f.cart(t, productID)

	// when
	result, err := f.service.Checkout(context.Background(), userID, cart.ID, f.paymentType(userID, true))

	// then
	require.NoError(t, err)
	require.NotNil(t, result.Order.CompletedAt)
	assert.Equal(t, fixed.Format(time.RFC3339), *result.Order.CompletedAt)
	assert.Equal(t, OrderStatusCompleted, result.Order.Status)
}

func Test_CheckoutService_CompletedEventCarriesStoredCompletionTime(t *testing.T) {
	// given
	clock := time.Date(2025, 6, 30, 18, 45, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	f := newFixture(t)
	f.service = NewService(f.store, f.publisher, testLogger, Options{Now: tick})
	productID := f.product(1, true)
	userID, cart := f.cart(t, productID)

	// when
	_, err := f.service.Checkout(context.Background(), userID, cart.ID, f.paymentType(userID, true))

	// then
	require.NoError(t, err)
	stored, _, err := f.store.FindByID(context.Background(), cart.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	published := f.publisher.published()
	require.Len(t, published, 1)
	event, ok := published[0].(events.OrderCompletedEvent)
	require.True(t, ok)
	assert.True(t, stored.CompletedAt.Equal(event.CompletedAt), "event %v, stored %v", event.CompletedAt, *stored.CompletedAt)
}

func Test_NewService_Defaults(t *testing.T) {
	s := NewService(store.NewMemoryStore(), nil, testLogger, Options{MaxAttempts: 0})
	assert.Equal(t, DefaultMaxAttempts, s.maxAttempts)
	assert.NotNil(t, s.publisher)
	assert.NotNil(t, s.now)
}

func ptr[T any](v T) *T {
	return &v
}
