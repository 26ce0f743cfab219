package seeder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder loads example orders for local/dev setups.
type Seeder struct {
	repo   repo.Repository
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder writing through the configured order store.
func New(r repo.Repository, logger *zap.Logger) *Seeder {
	return &Seeder{repo: r, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Orders upserts a fixed set of sample orders. Ids are stable, so reruns overwrite instead of
// duplicating.
func (s *Seeder) Orders(ctx context.Context) error {
	now := s.now()
	samples := []entity.Order{
		{OrderID: "seed-order-1000", CustomerName: "Ada Lovelace", Amount: 120.5, CreatedAt: now},
		{OrderID: "seed-order-1001", CustomerName: "Grace Hopper", Amount: 42, CreatedAt: now},
		{OrderID: "seed-order-1002", CustomerName: "Alan Turing", Amount: 0, CreatedAt: now},
	}

	for i := range samples {
		if err := s.repo.Put(ctx, &samples[i]); err != nil {
			return fmt.Errorf("seed order %s: %w", samples[i].OrderID, err)
		}
	}

	s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	return nil
}
