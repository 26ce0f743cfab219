package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_ToRecord(t *testing.T) {
	url := "http://localhost:4566/order-invoices/abc_invoice.pdf"
	createdAt := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

	cases := map[string]struct {
		order    Order
		expected map[string]any
	}{
		"order without invoice omits the invoice field": {
			order: Order{OrderID: "o-1", CustomerName: "Alice", Amount: 42.5, CreatedAt: createdAt},
			expected: map[string]any{
				FieldOrderID:      "o-1",
				FieldCustomerName: "Alice",
				FieldAmount:       "42.5",
				FieldCreatedAt:    "2025-03-14T09:26:53.589793Z",
			},
		},
		"order with invoice": {
			order: Order{OrderID: "o-2", CustomerName: "Bob", Amount: 10, InvoiceURL: &url, CreatedAt: createdAt},
			expected: map[string]any{
				FieldOrderID:      "o-2",
				FieldCustomerName: "Bob",
				FieldAmount:       "10",
				FieldInvoiceURL:   url,
				FieldCreatedAt:    "2025-03-14T09:26:53.589793Z",
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.order.ToRecord())
		})
	}
}

func TestOrderFromRecord(t *testing.T) {
	t.Run("restores every field", func(t *testing.T) {
		order, err := OrderFromRecord(map[string]string{
			FieldOrderID:      "o-1",
			FieldCustomerName: "Alice",
			FieldAmount:       "42.5",
			FieldInvoiceURL:   "memory://order-invoices/k",
			FieldCreatedAt:    "2025-03-14T09:26:53.589793Z",
		})
		require.NoError(t, err)

		assert.Equal(t, "o-1", order.OrderID)
		assert.Equal(t, "Alice", order.CustomerName)
		assert.Equal(t, 42.5, order.Amount)
		require.NotNil(t, order.InvoiceURL)
		assert.Equal(t, "memory://order-invoices/k", *order.InvoiceURL)
		assert.True(t, order.CreatedAt.Equal(time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)))
	})

	t.Run("missing invoice stays nil", func(t *testing.T) {
		order, err := OrderFromRecord(map[string]string{FieldOrderID: "o-1", FieldAmount: "1"})
		require.NoError(t, err)

		assert.Nil(t, order.InvoiceURL)
		assert.False(t, order.HasInvoice())
	})

	t.Run("rejects records without id", func(t *testing.T) {
		_, err := OrderFromRecord(map[string]string{FieldCustomerName: "Alice"})
		assert.EqualError(t, err, "record has no orderId")
	})

	t.Run("rejects malformed amount", func(t *testing.T) {
		_, err := OrderFromRecord(map[string]string{FieldOrderID: "o-1", FieldAmount: "lots"})
		assert.ErrorContains(t, err, "parse amount")
	})
}
