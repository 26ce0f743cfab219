package order

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

// SQLRepository stores orders in the relational `orders` table through bun.
type SQLRepository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewSQLRepository wires a repository backed by the configured writer/reader pools.
func NewSQLRepository(conns *database.Connections) *SQLRepository {
	return &SQLRepository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Put upserts the order on the write connection.
func (r *SQLRepository) Put(ctx context.Context, order *entity.Order) error {
	if err := validateForPut(order); err != nil {
		return err
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Put", trace.WithAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("store.driver", "sql"),
	))
	defer span.End()

	query := r.writer.NewInsert().Model(order)
	if r.writer.Dialect().Name() == dialect.MySQL {
		query = query.On("DUPLICATE KEY UPDATE").
			Set("customer_name = VALUES(customer_name)").
			Set("amount = VALUES(amount)").
			Set("invoice_url = VALUES(invoice_url)").
			Set("created_at = VALUES(created_at)")
	} else {
		query = query.On("CONFLICT (order_id) DO UPDATE").
			Set("customer_name = EXCLUDED.customer_name").
			Set("amount = EXCLUDED.amount").
			Set("invoice_url = EXCLUDED.invoice_url").
			Set("created_at = EXCLUDED.created_at")
	}

	if _, err := query.Exec(ctx); err != nil {
		recordSpanError(span, err, "insert failed")
		return err
	}
	return nil
}

// GetByID fetches an order by primary key using the read replica when available.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("store.driver", "sql"),
	))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).Where("order_id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		recordSpanError(span, err, "select failed")
		return nil, err
	}
	return order, nil
}

// ScanAll reads the whole table.
func (r *SQLRepository) ScanAll(ctx context.Context) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ScanAll", trace.WithAttributes(
		attribute.String("store.driver", "sql"),
	))
	defer span.End()

	orders := make([]entity.Order, 0)
	if err := r.reader.NewSelect().Model(&orders).Scan(ctx); err != nil {
		recordSpanError(span, err, "scan failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}
