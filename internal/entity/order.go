package entity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

// Record field names used by hash-shaped stores.
const (
	FieldOrderID      = "orderId"
	FieldCustomerName = "customerName"
	FieldAmount       = "amount"
	FieldInvoiceURL   = "invoiceUrl"
	FieldCreatedAt    = "createdAt"
)

// Order is a purchase with an optional invoice reference. OrderID is assigned once by the
// order service before the first write and never changes.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID      string    `bun:"order_id,pk"`
	CustomerName string    `bun:"customer_name,notnull"`
	Amount       float64   `bun:"amount,notnull"`
	InvoiceURL   *string   `bun:"invoice_url"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

// HasInvoice reports whether an invoice was uploaded for the order.
func (o *Order) HasInvoice() bool {
	return o.InvoiceURL != nil && *o.InvoiceURL != ""
}

// ToRecord flattens the order into the field map persisted by hash-shaped stores.
func (o *Order) ToRecord() map[string]any {
	record := map[string]any{
		FieldOrderID:      o.OrderID,
		FieldCustomerName: o.CustomerName,
		FieldAmount:       strconv.FormatFloat(o.Amount, 'f', -1, 64),
		FieldCreatedAt:    o.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if o.HasInvoice() {
		record[FieldInvoiceURL] = *o.InvoiceURL
	}
	return record
}

// OrderFromRecord is the inverse of ToRecord.
func OrderFromRecord(record map[string]string) (*Order, error) {
	id := record[FieldOrderID]
	if id == "" {
		return nil, fmt.Errorf("record has no %s", FieldOrderID)
	}

	order := &Order{
		OrderID:      id,
		CustomerName: record[FieldCustomerName],
	}

	if raw, ok := record[FieldAmount]; ok && raw != "" {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("order %s: parse %s: %w", id, FieldAmount, err)
		}
		order.Amount = amount
	}

	if raw, ok := record[FieldCreatedAt]; ok && raw != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("order %s: parse %s: %w", id, FieldCreatedAt, err)
		}
		order.CreatedAt = createdAt.UTC()
	}

	if url, ok := record[FieldInvoiceURL]; ok && url != "" {
		order.InvoiceURL = &url
	}

	return order, nil
}
