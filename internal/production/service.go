// Package production records billable procedures per patient-day and keeps
// each day's cached total equal to the sum of its line items.
package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/tariff"
)

// PriceResolver resolves the tariff a new line item freezes.
type PriceResolver interface {
	Resolve(ctx context.Context, q tariff.Query) (tariff.Resolution, error)
}

// ItemInput is a proposed line item. A nil or zero ExplicitPrice asks for
// the tariff price unless Manual is set, which freezes ExplicitPrice as given,
// zero included.
type ItemInput struct {
	RecordID      int64
	ProcedureID   int64
	Quantity      int
	ExplicitPrice *decimal.Decimal
	Manual        bool
}

// Service orchestrates validate -> persist -> recompute for line items.
type Service struct {
	store    Store
	resolver PriceResolver
	clock    model.Clock
	log      zerolog.Logger
}

func NewService(store Store, resolver PriceResolver, clock model.Clock, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		clock:    clock,
		log:      log.With().Str("component", "production").Logger(),
	}
}

// GetOrCreateDailyRecord returns the record of patientID on day, creating an
// empty one (total zero) when none exists.
func (s *Service) GetOrCreateDailyRecord(ctx context.Context, actor model.Actor, patientID int64, day time.Time) (*model.ProductionRecord, error) {
	if day.IsZero() {
		day = s.clock.Now()
	}
	day = model.Day(day)

	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, fmt.Errorf("daily record: %w", err)
	}

	rec, err := s.store.FindRecord(ctx, patientID, day)
	if err == nil {
		return rec, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, fmt.Errorf("find daily record: %w", err)
	}

	rec = &model.ProductionRecord{
		PatientID: patientID,
		Day:       day,
		Total:     decimal.Zero,
		CreatedBy: actor.Ref(),
	}
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		if errors.Is(err, apperr.ErrUniqueViolation) {
			// Created concurrently; use the winner.
			return s.store.FindRecord(ctx, patientID, day)
		}
		return nil, fmt.Errorf("insert daily record: %w", err)
	}
	s.log.Debug().Int64("record_id", rec.ID).Int64("patient_id", patientID).
		Str("day", day.Format(time.DateOnly)).Msg("daily record created")
	return rec, nil
}

// UpsertLineItem creates the item for (record, procedure) or, when one
// exists, updates its quantity. The record total is recomputed before
// returning.
func (s *Service) UpsertLineItem(ctx context.Context, actor model.Actor, in ItemInput) (*model.LineItem, error) {
	return s.write(ctx, actor, in, true)
}

// AddLineItem inserts a new item and fails with DuplicateItemError when the
// record already bills the procedure.
func (s *Service) AddLineItem(ctx context.Context, actor model.Actor, in ItemInput) (*model.LineItem, error) {
	return s.write(ctx, actor, in, false)
}

func (s *Service) write(ctx context.Context, actor model.Actor, in ItemInput, upsert bool) (*model.LineItem, error) {
	if in.ExplicitPrice != nil && in.ExplicitPrice.IsNegative() {
		return nil, apperr.Invalid("unit_price", "must be >= 0, got %s", in.ExplicitPrice)
	}
	if in.ExplicitPrice != nil && !model.IsCents(*in.ExplicitPrice) {
		return nil, apperr.Invalid("unit_price", "%s has more than two decimal places", in.ExplicitPrice)
	}
	if in.Manual && in.ExplicitPrice == nil {
		return nil, apperr.Invalid("unit_price", "a manual price needs a value")
	}
	var out *model.LineItem
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		rec, err := s.store.LockRecord(ctx, in.RecordID)
		if err != nil {
			return err
		}
		proc, err := s.store.GetProcedure(ctx, in.ProcedureID)
		if err != nil {
			return err
		}
		if err := ValidateQuantity(proc.Kind, in.Quantity); err != nil {
			return err
		}

		existing, err := s.store.FindItem(ctx, rec.ID, proc.ID)
		switch {
		case err == nil && !upsert:
			return &apperr.DuplicateItemError{RecordID: rec.ID, ProcedureID: proc.ID}
		case err == nil:
			existing.Quantity = in.Quantity
			if overridesPrice(in) {
				existing.UnitPrice = *in.ExplicitPrice
				existing.PriceSource = model.PriceManual
			}
			if err := s.store.UpdateItem(ctx, existing); err != nil {
				return fmt.Errorf("update item %d: %w", existing.ID, err)
			}
			out = existing
		case apperr.IsNotFound(err):
			if !proc.Active {
				return apperr.Invalid("procedure_id", "procedure %d is inactive", proc.ID)
			}
			item := &model.LineItem{
				RecordID:    rec.ID,
				ProcedureID: proc.ID,
				Quantity:    in.Quantity,
				CreatedBy:   actor.Ref(),
			}
			if err := s.snapshotPrice(ctx, rec, item, in); err != nil {
				return err
			}
			if err := s.store.InsertItem(ctx, item); err != nil {
				if errors.Is(err, apperr.ErrUniqueViolation) {
					return &apperr.DuplicateItemError{RecordID: rec.ID, ProcedureID: proc.ID}
				}
				return fmt.Errorf("insert item: %w", err)
			}
			out = item
		default:
			return fmt.Errorf("find item: %w", err)
		}

		_, _, err = s.recompute(ctx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int64("record_id", out.RecordID).
		Int64("item_id", out.ID).
		Int64("procedure_id", out.ProcedureID).
		Int("quantity", out.Quantity).
		Str("unit_price", out.UnitPrice.StringFixed(2)).
		Str("price_source", string(out.PriceSource)).
		Str("actor", string(actor)).
		Msg("line item saved")
	return out, nil
}

// UpdateQuantity changes the quantity of an existing item. The frozen price
// is kept.
func (s *Service) UpdateQuantity(ctx context.Context, actor model.Actor, itemID int64, quantity int) (*model.LineItem, error) {
	var out *model.LineItem
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		item, rec, err := s.lockItem(ctx, itemID)
		if err != nil {
			return err
		}
		proc, err := s.store.GetProcedure(ctx, item.ProcedureID)
		if err != nil {
			return err
		}
		if err := ValidateQuantity(proc.Kind, quantity); err != nil {
			return err
		}
		item.Quantity = quantity
		if err := s.store.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("update item %d: %w", itemID, err)
		}
		out = item
		_, _, err = s.recompute(ctx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("item_id", itemID).Int("quantity", quantity).
		Str("actor", string(actor)).Msg("line item quantity updated")
	return out, nil
}

// DeleteLineItem removes an item and recomputes the record it belonged to.
func (s *Service) DeleteLineItem(ctx context.Context, actor model.Actor, itemID int64) error {
	var recordID int64
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		_, rec, err := s.lockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := s.store.DeleteItem(ctx, itemID); err != nil {
			return fmt.Errorf("delete item %d: %w", itemID, err)
		}
		recordID = rec.ID
		_, _, err = s.recompute(ctx, rec)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info().Int64("item_id", itemID).Int64("record_id", recordID).
		Str("actor", string(actor)).Msg("line item deleted")
	return nil
}

// lockItem locks the record owning itemID and reads the item under that
// lock, so a write committed while waiting is not overwritten.
func (s *Service) lockItem(ctx context.Context, itemID int64) (*model.LineItem, *model.ProductionRecord, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.store.LockRecord(ctx, item.RecordID)
	if err != nil {
		return nil, nil, err
	}
	item, err = s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	return item, rec, nil
}

// RecomputeTotal sums the items of recordID, stores the result as the
// record total and returns it. Calling it again without mutations yields the
// same total.
func (s *Service) RecomputeTotal(ctx context.Context, recordID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		rec, err := s.store.LockRecord(ctx, recordID)
		if err != nil {
			return err
		}
		total, _, err = s.recompute(ctx, rec)
		return err
	})
	return total, err
}

// Record returns a record and its items.
func (s *Service) Record(ctx context.Context, recordID int64) (*model.ProductionRecord, []model.LineItem, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.ListItems(ctx, recordID)
	if err != nil {
		return nil, nil, fmt.Errorf("list items of record %d: %w", recordID, err)
	}
	return rec, items, nil
}

func (s *Service) recompute(ctx context.Context, rec *model.ProductionRecord) (decimal.Decimal, bool, error) {
	items, err := s.store.ListItems(ctx, rec.ID)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("list items of record %d: %w", rec.ID, err)
	}
	total := model.SumItems(items)
	changed := !total.Equal(rec.Total)
	if err := s.store.SetRecordTotal(ctx, rec.ID, total); err != nil {
		return decimal.Zero, false, fmt.Errorf("write total of record %d: %w", rec.ID, err)
	}
	rec.Total = total
	return total, changed, nil
}
