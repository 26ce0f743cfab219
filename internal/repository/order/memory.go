package order

import (
	"context"
	"sync"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

// MemoryRepository keeps orders in a map. Used for local runs and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]entity.Order
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]entity.Order)}
}

func (r *MemoryRepository) Put(_ context.Context, order *entity.Order) error {
	if err := validateForPut(order); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.OrderID] = cloneOrder(*order)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*entity.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (r *MemoryRepository) ScanAll(_ context.Context) ([]entity.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.Order, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, cloneOrder(order))
	}
	return out, nil
}

// cloneOrder copies the invoice pointer so callers cannot mutate stored state.
func cloneOrder(order entity.Order) entity.Order {
	if order.InvoiceURL != nil {
		url := *order.InvoiceURL
		order.InvoiceURL = &url
	}
	return order
}
