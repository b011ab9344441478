package production

import (
	"context"
	"fmt"
	"time"

	"github.com/gyeh/hdprod/internal/model"
)

// Backfill recomputes the total of every record matching f. It is a repair
// operation for bulk imports: only the total column is written.
func (s *Service) Backfill(ctx context.Context, f RecordFilter) (*model.BackfillSummary, error) {
	start := time.Now()

	ids, err := s.store.RecordIDs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}

	summary := &model.BackfillSummary{}
	for _, id := range ids {
		var changed bool
		err := s.store.InTx(ctx, func(ctx context.Context) error {
			rec, err := s.store.LockRecord(ctx, id)
			if err != nil {
				return err
			}
			before := rec.Total
			_, changed, err = s.recompute(ctx, rec)
			if err == nil && changed {
				s.log.Info().Int64("record_id", id).
					Str("before", before.StringFixed(2)).
					Str("after", rec.Total.StringFixed(2)).
					Msg("record total repaired")
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("recompute record %d: %w", id, err)
		}
		summary.RecordsScanned++
		if changed {
			summary.RecordsChanged++
		}
	}
	summary.Duration = time.Since(start)

	s.log.Info().
		Int("records_scanned", summary.RecordsScanned).
		Int("records_changed", summary.RecordsChanged).
		Str("duration", summary.Duration.String()).
		Msg("backfill complete")
	return summary, nil
}
