package production

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
)

// DayEntry is one row of a patient-day production form.
type DayEntry struct {
	ProcedureID   int64
	Quantity      int
	ExplicitPrice *decimal.Decimal
	Manual        bool // freeze ExplicitPrice even when zero
	Delete        bool // remove the item for ProcedureID if present
}

// EnterDay applies a whole patient-day form: it gets or creates the record
// for day (today when zero) and upserts or deletes one item per entry. It
// stops at the first failing entry; entries before it stay applied.
func (s *Service) EnterDay(ctx context.Context, actor model.Actor, patientID int64, day time.Time, entries []DayEntry) (*model.ProductionRecord, []model.LineItem, error) {
	rec, err := s.GetOrCreateDailyRecord(ctx, actor, patientID, day)
	if err != nil {
		return nil, nil, err
	}

	for i, e := range entries {
		if e.Delete {
			item, err := s.store.FindItem(ctx, rec.ID, e.ProcedureID)
			if apperr.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("entry %d: %w", i, err)
			}
			if err := s.DeleteLineItem(ctx, actor, item.ID); err != nil {
				return nil, nil, fmt.Errorf("entry %d: %w", i, err)
			}
			continue
		}
		_, err := s.UpsertLineItem(ctx, actor, ItemInput{
			RecordID:      rec.ID,
			ProcedureID:   e.ProcedureID,
			Quantity:      e.Quantity,
			ExplicitPrice: e.ExplicitPrice,
			Manual:        e.Manual,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	return s.Record(ctx, rec.ID)
}
