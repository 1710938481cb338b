package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"mra/internal/config"
	"mra/internal/domain"
	"mra/internal/engine"
)

// EngineFromConfig opens the tabular engine named by cfg. The returned close
// function releases the engine's resources and is never nil.
func EngineFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.TabularEngine, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Engine {
	case "", config.EngineMemory:
		return engine.NewMemory(), noop, nil
	case config.EngineDuckDB:
		db, err := engine.OpenDuckDB(cfg.DuckDBDSN)
		if err != nil {
			return nil, noop, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("ping duckdb: %w", err)
		}
		return engine.NewDuckDB(db, logger), db.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
