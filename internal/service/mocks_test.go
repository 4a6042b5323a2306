package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	ordererrors "github.com/bangazon/checkout/internal/errors"
	"github.com/bangazon/checkout/internal/store"
	"github.com/bangazon/checkout/internal/store/db"
	"github.com/bangazon/checkout/pkg/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// mockStore wraps a MemoryStore and injects failures into selected calls.
type mockStore struct {
	*store.MemoryStore

	mu              sync.Mutex
	reconcileErrs   []error
	reconcileCalls  int
	beforeReconcile func()
	findByIDErr     error
	paymentErr      error
	countErr        error
	createOrderErr  error
	hideOpenOnce    bool
	addLineItemErrs []error
}

func (m *mockStore) FindOpenOrderByUserID(ctx context.Context, userID uuid.UUID) (*db.Order, []db.LineItem, error) {
	if m.hideOpenOnce {
		m.hideOpenOnce = false
		return nil, nil, ordererrors.ErrOrderNotFound
	}
	return m.MemoryStore.FindOpenOrderByUserID(ctx, userID)
}

func (m *mockStore) AddLineItem(ctx context.Context, orderID, productID uuid.UUID) (*db.LineItem, error) {
	if len(m.addLineItemErrs) > 0 {
		err := m.addLineItemErrs[0]
		m.addLineItemErrs = m.addLineItemErrs[1:]
		return nil, err
	}
	return m.MemoryStore.AddLineItem(ctx, orderID, productID)
}

func (m *mockStore) FindByID(ctx context.Context, id uuid.UUID) (*db.Order, []db.LineItem, error) {
	if m.findByIDErr != nil {
		return nil, nil, m.findByIDErr
	}
	return m.MemoryStore.FindByID(ctx, id)
}

func (m *mockStore) IsActivePaymentMethodOwnedBy(ctx context.Context, paymentTypeID, userID uuid.UUID) (bool, error) {
	if m.paymentErr != nil {
		return false, m.paymentErr
	}
	return m.MemoryStore.IsActivePaymentMethodOwnedBy(ctx, paymentTypeID, userID)
}

func (m *mockStore) CountCompletedLineItems(ctx context.Context, productID uuid.UUID) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.MemoryStore.CountCompletedLineItems(ctx, productID)
}

func (m *mockStore) CreateOrder(ctx context.Context, userID uuid.UUID) (*db.Order, error) {
	if m.createOrderErr != nil {
		err := m.createOrderErr
		m.createOrderErr = nil
		return nil, err
	}
	return m.MemoryStore.CreateOrder(ctx, userID)
}

func (m *mockStore) Reconcile(ctx context.Context, params *store.ReconcileParams) (*db.Order, error) {
	m.mu.Lock()
	m.reconcileCalls++
	hook := m.beforeReconcile
	m.beforeReconcile = nil
	var err error
	if len(m.reconcileErrs) > 0 {
		err, m.reconcileErrs = m.reconcileErrs[0], m.reconcileErrs[1:]
	}
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return m.MemoryStore.Reconcile(ctx, params)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) published() []messaging.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.Event(nil), p.events...)
}

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fixture struct {
	store     *mockStore
	publisher *recordingPublisher
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := &mockStore{MemoryStore: store.NewMemoryStore()}
	pub := &recordingPublisher{}
	return &fixture{
		store:     st,
		publisher: pub,
		service:   NewService(st, pub, testLogger, Options{}),
	}
}

func (f *fixture) product(quantity int32, active bool) uuid.UUID {
	id := uuid.New()
	f.store.PutProduct(db.Product{ID: id, Title: "Widget", Price: 1250, Quantity: quantity, Active: active})
	return id
}

func (f *fixture) paymentType(userID uuid.UUID, active bool) uuid.UUID {
	id := uuid.New()
	f.store.PutPaymentType(db.PaymentType{ID: id, UserID: userID, Description: "Amex", AccountNumber: "378282246310005", Active: active})
	return id
}

// cart opens a cart for a new user and adds one line per product id given.
func (f *fixture) cart(t *testing.T, productIDs ...uuid.UUID) (userID uuid.UUID, cart *OrderDto) {
	t.Helper()
	userID = uuid.New()
	cart, err := f.service.GetOrCreateOpenCart(context.Background(), userID)
	require.NoError(t, err)
	for _, productID := range productIDs {
		_, err := f.service.AddLineItem(context.Background(), cart.ID, productID)
		require.NoError(t, err)
	}
	cart, err = f.service.GetOrCreateOpenCart(context.Background(), userID)
	require.NoError(t, err)
	return userID, cart
}

func repeat(id uuid.UUID, n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = id
	}
	return ids
}
