package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bangazon/checkout/pkg/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
)

func TestEvents_SubjectAndKey(t *testing.T) {
	orderID := uuid.New()

	testCases := []struct {
		name            string
		event           messaging.Event
		expectedSubject string
	}{
		{name: "order completed", event: OrderCompletedEvent{OrderID: orderID}, expectedSubject: messaging.OrdersCompletedSubject},
		{name: "cart items removed", event: CartItemsRemovedEvent{OrderID: orderID}, expectedSubject: messaging.CartItemsRemovedSubject},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedSubject, tc.event.Subject())
			assert.Equal(t, orderID.String(), tc.event.Key())
		})
	}
}

func TestOrderCompletedEvent_PayloadCarriesTraceContext(t *testing.T) {
	// given
	event := OrderCompletedEvent{
		Carrier:     propagation.MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		OrderID:     uuid.New(),
		UserID:      uuid.New(),
		TotalPrice:  2500,
		CompletedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	// when
	data, err := event.Payload()

	// then
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.OrderID.String(), decoded["order_id"])
	assert.Equal(t, map[string]any{"traceparent": event.Carrier["traceparent"]}, decoded["carrier"])
}
