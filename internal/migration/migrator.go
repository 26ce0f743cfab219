package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
)

//go:embed sql/*.sql
var migrations embed.FS

// Module provides the migrator; it needs database.Module in the same graph.
var Module = fx.Provide(New)

// Migrator versions the orders table used by the sql store.
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

// Status describes one embedded migration against the connected database.
type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// New builds a migrator on the writer connection.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	return newMigrator(dialect, conns.Writer.DB, logger)
}

func newMigrator(dialect goose.Dialect, db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	scripts, err := fs.Sub(migrations, "sql")
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, db, scripts)
	if err != nil {
		return nil, fmt.Errorf("load order migrations: %w", err)
	}
	return &Migrator{provider: provider, logger: logger}, nil
}

// Up applies pending migrations and returns the versions it applied.
func (m *Migrator) Up(ctx context.Context) ([]int64, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply order migrations: %w", err)
	}
	applied := versions(results)
	if len(applied) == 0 {
		m.logger.Info("orders schema already up to date")
		return nil, nil
	}
	m.logger.Info("order migrations applied", zap.Int64s("versions", applied))
	return applied, nil
}

// Down rolls back the latest steps migrations, at least one, or every migration when all is set.
// It returns the versions rolled back, newest first.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) ([]int64, error) {
	if all {
		results, err := m.provider.DownTo(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("rollback order migrations: %w", err)
		}
		rolled := versions(results)
		m.logger.Info("order migrations rolled back", zap.String("mode", "all"), zap.Int64s("versions", rolled))
		return rolled, nil
	}

	if steps <= 0 {
		steps = 1
	}
	var rolled []int64
	for i := 0; i < steps; i++ {
		result, err := m.provider.Down(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			break
		}
		if err != nil {
			return rolled, fmt.Errorf("rollback order migration step %d: %w", i+1, err)
		}
		rolled = append(rolled, result.Source.Version)
	}
	if len(rolled) == 0 {
		m.logger.Info("no order migrations to roll back")
		return nil, nil
	}
	m.logger.Info("order migrations rolled back", zap.Int64s("versions", rolled))
	return rolled, nil
}

// Status lists every embedded migration in version order.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("read order migration status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version:   s.Source.Version,
			Name:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return out, nil
}

func versions(results []*goose.MigrationResult) []int64 {
	out := make([]int64, 0, len(results))
	for _, r := range results {
		out = append(out, r.Source.Version)
	}
	return out
}

func gooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case "postgres", "pg":
		return goose.DialectPostgres, nil
	case "mysql":
		return goose.DialectMySQL, nil
	case "sqlite", "sqlite3":
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}
