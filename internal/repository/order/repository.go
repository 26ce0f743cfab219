package order

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/orderdesk/repository/order")

// ErrNotFound is returned when no order is stored under the requested id.
var ErrNotFound = errors.New("order not found")

// Repository is the key-value store for orders, addressed by order id.
type Repository interface {
	// Put stores the order under its OrderID, replacing any previous record.
	Put(ctx context.Context, order *entity.Order) error
	// GetByID returns ErrNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	// ScanAll walks the whole store. There is no pagination and no ordering guarantee.
	ScanAll(ctx context.Context) ([]entity.Order, error)
}

func validateForPut(order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	if order.OrderID == "" {
		return errors.New("order id is required")
	}
	return nil
}

func recordSpanError(span trace.Span, err error, status string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
}

var (
	_ Repository = (*SQLRepository)(nil)
	_ Repository = (*RedisRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
