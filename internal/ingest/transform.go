package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/hdprod/internal/model"
	embedsql "github.com/gyeh/hdprod/internal/sql"
)

// Pair is a (procedure, hospital) whose tariff list changed.
type Pair struct {
	ProcedureID int64
	HospitalID  int64
}

// TransformResult holds metrics from the staging → catalog insert.
type TransformResult struct {
	RowsInserted int64
	// RowsUnresolved counts staged rows naming an unknown procedure code,
	// hospital or insurer.
	RowsUnresolved int64
	Pairs          []Pair
	Duration       time.Duration
}

// Transform resolves staged codes and names to ids and inserts the tariff
// entries of batchID. Entries whose scope already starts on the same day are
// left untouched.
func Transform(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, batchID uuid.UUID, actor model.Actor) (*TransformResult, error) {
	start := time.Now()

	var unresolved int64
	if err := pool.QueryRow(ctx, embedsql.CountUnresolvedTariffs, batchID).Scan(&unresolved); err != nil {
		return nil, fmt.Errorf("count unresolved rows: %w", err)
	}

	rows, err := pool.Query(ctx, embedsql.TransformTariffs, batchID, actor.Ref())
	if err != nil {
		return nil, fmt.Errorf("transform tariffs: %w", err)
	}
	defer rows.Close()

	res := &TransformResult{RowsUnresolved: unresolved}
	for rows.Next() {
		var p Pair
		var n int64
		if err := rows.Scan(&p.ProcedureID, &p.HospitalID, &n); err != nil {
			return nil, fmt.Errorf("scan transform result: %w", err)
		}
		res.Pairs = append(res.Pairs, p)
		res.RowsInserted += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transform tariffs: %w", err)
	}
	res.Duration = time.Since(start)

	if unresolved > 0 {
		log.Warn().Int64("rows_unresolved", unresolved).Msg("staged rows reference unknown procedures, hospitals or insurers")
	}
	log.Info().
		Int64("rows_inserted", res.RowsInserted).
		Int("pairs", len(res.Pairs)).
		Str("duration", res.Duration.String()).
		Msg("transform complete")
	return res, nil
}
