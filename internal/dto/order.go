package dto

import "time"

// OrderResponse represents an order as exposed via transport layers.
// InvoiceURL renders as null when no invoice was uploaded.
type OrderResponse struct {
	OrderID      string    `json:"orderId"`
	CustomerName string    `json:"customerName"`
	Amount       float64   `json:"amount"`
	InvoiceURL   *string   `json:"invoiceUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateOrderRequest is the client-supplied order draft. Server-owned fields are ignored.
type CreateOrderRequest struct {
	CustomerName string  `json:"customerName"`
	Amount       float64 `json:"amount"`
}
