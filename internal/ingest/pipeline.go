// Package ingest loads Parquet files into the database: tariff catalogs
// through a staged COPY, and legacy flat-rate production through the
// migration tool.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/hdprod/internal/config"
	"github.com/gyeh/hdprod/internal/legacy"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/parquetread"
	"github.com/gyeh/hdprod/internal/tariff"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func alreadyLoaded(log zerolog.Logger, pf *PreflightResult, start time.Time) *model.ImportSummary {
	log.Info().
		Int64("import_id", pf.ImportID).
		Str("sha256", pf.FileSHA256).
		Msg("file already imported, skipping (use --force to re-import)")
	return &model.ImportSummary{
		Kind:          pf.Kind,
		FilePath:      pf.FilePath,
		FileSHA256:    pf.FileSHA256,
		ImportID:      pf.ImportID,
		ImportBatchID: pf.ImportBatchID.String(),
		AlreadyLoaded: true,
		DurationTotal: time.Since(start),
	}
}

// RunTariffs executes the tariff catalog pipeline: preflight → stage →
// transform → finalize → cleanup. inv, when set, is told about every
// (procedure, hospital) pair that received entries.
func RunTariffs(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, cfg *config.Config, inv tariff.Invalidator) (*model.ImportSummary, error) {
	totalStart := time.Now()
	actor := model.Actor(cfg.Actor)

	// Phase 1: Preflight
	log.Info().Str("file", cfg.FilePath).Msg("starting preflight")
	pf, err := Preflight[model.TariffRow](ctx, pool, log, KindTariff, cfg.FilePath, model.RequiredTariffColumns, cfg.Force)
	if err != nil {
		return nil, &PipelineError{Phase: "preflight", Err: err}
	}
	if pf.AlreadyLoaded {
		return alreadyLoaded(log, pf, totalStart), nil
	}

	// Phase 2: Stage
	log.Info().Msg("starting staging")
	if err := UpdateStatus(ctx, pool, pf.ImportID, StatusStaging); err != nil {
		return nil, &PipelineError{Phase: "stage", Err: err}
	}
	stageResult, err := Stage(ctx, pool, log, pf)
	if err != nil {
		_ = UpdateStatus(ctx, pool, pf.ImportID, StatusFailed)
		return nil, &PipelineError{Phase: "stage", Err: err}
	}
	if err := UpdateStatus(ctx, pool, pf.ImportID, StatusStaged); err != nil {
		return nil, &PipelineError{Phase: "stage", Err: err}
	}

	// Phase 3: Transform
	log.Info().Msg("starting transform")
	if err := UpdateStatus(ctx, pool, pf.ImportID, StatusTransforming); err != nil {
		return nil, &PipelineError{Phase: "transform", Err: err}
	}
	transformResult, err := Transform(ctx, pool, log, pf.ImportBatchID, actor)
	if err != nil {
		_ = UpdateStatus(ctx, pool, pf.ImportID, StatusFailed)
		return nil, &PipelineError{Phase: "transform", Err: err}
	}
	if inv != nil {
		for _, p := range transformResult.Pairs {
			if err := inv.Invalidate(ctx, p.ProcedureID, p.HospitalID); err != nil {
				log.Warn().Err(err).
					Int64("procedure_id", p.ProcedureID).
					Int64("hospital_id", p.HospitalID).
					Msg("tariff cache invalidation failed")
			}
		}
	}

	// Phase 4: Finalize
	log.Info().Msg("finalizing")
	if _, err := Finalize(ctx, pool, log, pf); err != nil {
		_ = UpdateStatus(ctx, pool, pf.ImportID, StatusFailed)
		return nil, &PipelineError{Phase: "finalize", Err: err}
	}

	// Phase 5: Cleanup staging
	if !cfg.KeepStaging {
		log.Info().Msg("cleaning up staging")
		if err := Cleanup(ctx, pool, log, pf.ImportBatchID); err != nil {
			log.Warn().Err(err).Msg("staging cleanup failed (non-fatal)")
		}
	}

	summary := &model.ImportSummary{
		Kind:          KindTariff,
		FilePath:      pf.FilePath,
		FileSHA256:    pf.FileSHA256,
		ImportID:      pf.ImportID,
		ImportBatchID: pf.ImportBatchID.String(),
		RowsRead:      stageResult.RowsRead,
		RowsStaged:    stageResult.RowsStaged,
		RowsRejected:  stageResult.RowsRejected + transformResult.RowsUnresolved,
		RowsInserted:  transformResult.RowsInserted,
		RowsSkipped:   stageResult.RowsStaged - transformResult.RowsUnresolved - transformResult.RowsInserted,
		DurationTotal: time.Since(totalStart),
	}

	log.Info().
		Int64("rows_read", summary.RowsRead).
		Int64("rows_staged", summary.RowsStaged).
		Int64("rows_inserted", summary.RowsInserted).
		Int64("rows_skipped", summary.RowsSkipped).
		Int64("rows_rejected", summary.RowsRejected).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("tariff import complete")

	return summary, nil
}

// HospitalRates looks up the flat rates of a hospital.
type HospitalRates func(ctx context.Context, hospitalID int64) (model.FlatRates, bool)

// RunLegacy converts a legacy flat-rate production file: preflight → read →
// migrate → finalize. Rows that fail to parse are counted as rejected.
func RunLegacy(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, cfg *config.Config, m *legacy.Migrator, rates HospitalRates) (*model.ImportSummary, error) {
	totalStart := time.Now()

	log.Info().Str("file", cfg.FilePath).Msg("starting preflight")
	pf, err := Preflight[model.LegacyProductionRow](ctx, pool, log, KindLegacy, cfg.FilePath, model.RequiredLegacyColumns, cfg.Force)
	if err != nil {
		return nil, &PipelineError{Phase: "preflight", Err: err}
	}
	if pf.AlreadyLoaded {
		return alreadyLoaded(log, pf, totalStart), nil
	}

	raw, err := parquetread.ReadAll[model.LegacyProductionRow](pf.FilePath, model.RequiredLegacyColumns)
	if err != nil {
		_ = UpdateStatus(ctx, pool, pf.ImportID, StatusFailed)
		return nil, &PipelineError{Phase: "stage", Err: err}
	}
	rows, rowErrs := legacy.RowsFromParquet(raw, func(id int64) (model.FlatRates, bool) {
		return rates(ctx, id)
	})
	for _, e := range rowErrs {
		log.Warn().Err(e).Msg("row rejected")
	}

	if err := UpdateStatus(ctx, pool, pf.ImportID, StatusTransforming); err != nil {
		return nil, &PipelineError{Phase: "transform", Err: err}
	}
	res, err := m.Migrate(ctx, model.Actor(cfg.Actor), rows)
	if err != nil {
		_ = UpdateStatus(ctx, pool, pf.ImportID, StatusFailed)
		return nil, &PipelineError{Phase: "transform", Err: err}
	}

	if _, err := Finalize(ctx, pool, log, pf); err != nil {
		return nil, &PipelineError{Phase: "finalize", Err: err}
	}

	summary := &model.ImportSummary{
		Kind:          KindLegacy,
		FilePath:      pf.FilePath,
		FileSHA256:    pf.FileSHA256,
		ImportID:      pf.ImportID,
		ImportBatchID: pf.ImportBatchID.String(),
		RowsRead:      int64(len(raw)),
		RowsStaged:    int64(len(rows)),
		RowsRejected:  int64(len(rowErrs) + res.DaysRejected),
		RowsInserted:  int64(res.DaysConverted),
		Mismatches:    int64(res.Mismatches),
		DurationTotal: time.Since(totalStart),
	}

	log.Info().
		Int64("rows_read", summary.RowsRead).
		Int("days_converted", res.DaysConverted).
		Int("tariffs_created", res.TariffsCreated).
		Int("tariffs_closed", res.TariffsClosed).
		Int("rate_conflicts", res.RateConflicts).
		Int64("mismatches", summary.Mismatches).
		Int64("rows_rejected", summary.RowsRejected).
		Str("total_duration", summary.DurationTotal.String()).
		Msg("legacy import complete")

	return summary, nil
}
