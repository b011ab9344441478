package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	embedsql "github.com/gyeh/hdprod/internal/sql"
)

// Finalize marks the import done and, after a catalog load, refreshes the
// planner statistics of the tariff table.
func Finalize(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, pf *PreflightResult) (time.Duration, error) {
	start := time.Now()

	if pf.Kind == KindTariff {
		if _, err := pool.Exec(ctx, embedsql.AnalyzeTariffs); err != nil {
			return 0, fmt.Errorf("analyze tariffs: %w", err)
		}
		log.Info().Msg("ANALYZE complete")
	}

	if err := UpdateStatus(ctx, pool, pf.ImportID, StatusDone); err != nil {
		return 0, fmt.Errorf("update status to done: %w", err)
	}
	return time.Since(start), nil
}
