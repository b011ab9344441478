package tariff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
)

// Store is the persistence the catalog needs.
type Store interface {
	Source
	InsertTariff(ctx context.Context, e *model.TariffEntry) error
	GetTariff(ctx context.Context, id int64) (*model.TariffEntry, error)
	SetTariffEnd(ctx context.Context, id int64, end *time.Time) error
	GetProcedure(ctx context.Context, id int64) (*model.Procedure, error)
	GetHospital(ctx context.Context, id int64) (*model.Hospital, error)
	GetInsurancePlan(ctx context.Context, id int64) (*model.InsurancePlan, error)
}

// Invalidator is told when the entries of a (procedure, hospital) pair change.
type Invalidator interface {
	Invalidate(ctx context.Context, procedureID, hospitalID int64) error
}

// NewEntry is the input of AddEntry.
type NewEntry struct {
	ProcedureID int64
	HospitalID  int64
	InsurerID   *int64
	UnitPrice   decimal.Decimal
	ValidFrom   time.Time
	ValidTo     *time.Time
}

// Catalog validates and records tariff entries.
type Catalog struct {
	store Store
	inval Invalidator
	log   zerolog.Logger
}

func NewCatalog(store Store, log zerolog.Logger) *Catalog {
	return &Catalog{store: store, log: log.With().Str("component", "tariff_catalog").Logger()}
}

// WithInvalidator attaches a cache invalidator, called after every write.
func (c *Catalog) WithInvalidator(inv Invalidator) *Catalog {
	c.inval = inv
	return c
}

// AddEntry validates in and inserts it. A second entry with the same
// procedure, hospital, insurer and start date is a ConflictError.
func (c *Catalog) AddEntry(ctx context.Context, actor model.Actor, in NewEntry) (*model.TariffEntry, error) {
	if in.UnitPrice.IsNegative() {
		return nil, apperr.Invalid("unit_price", "must be >= 0, got %s", in.UnitPrice)
	}
	if !model.IsCents(in.UnitPrice) {
		return nil, apperr.Invalid("unit_price", "%s has more than two decimal places", in.UnitPrice)
	}
	if in.ValidFrom.IsZero() {
		return nil, apperr.Invalid("valid_from", "is required")
	}
	from := model.Day(in.ValidFrom)
	var to *time.Time
	if in.ValidTo != nil {
		d := model.Day(*in.ValidTo)
		if d.Before(from) {
			return nil, apperr.Invalid("valid_to", "%s is before valid_from %s", d.Format(time.DateOnly), from.Format(time.DateOnly))
		}
		to = &d
	}

	if _, err := c.store.GetProcedure(ctx, in.ProcedureID); err != nil {
		return nil, fmt.Errorf("add tariff: %w", err)
	}
	if _, err := c.store.GetHospital(ctx, in.HospitalID); err != nil {
		return nil, fmt.Errorf("add tariff: %w", err)
	}
	if in.InsurerID != nil {
		if _, err := c.store.GetInsurancePlan(ctx, *in.InsurerID); err != nil {
			return nil, fmt.Errorf("add tariff: %w", err)
		}
	}

	existing, err := c.store.TariffsFor(ctx, in.ProcedureID, in.HospitalID)
	if err != nil {
		return nil, fmt.Errorf("add tariff: %w", err)
	}
	for _, e := range existing {
		if e.SameInsurer(in.InsurerID) && model.Day(e.ValidFrom).Equal(from) {
			return nil, duplicateScope(from)
		}
	}

	entry := &model.TariffEntry{
		ProcedureID: in.ProcedureID,
		HospitalID:  in.HospitalID,
		InsurerID:   in.InsurerID,
		UnitPrice:   in.UnitPrice,
		ValidFrom:   from,
		ValidTo:     to,
		CreatedBy:   actor.Ref(),
	}
	if err := c.store.InsertTariff(ctx, entry); err != nil {
		if errors.Is(err, apperr.ErrUniqueViolation) {
			return nil, duplicateScope(from)
		}
		return nil, fmt.Errorf("insert tariff: %w", err)
	}

	c.log.Info().
		Int64("tariff_id", entry.ID).
		Int64("procedure_id", entry.ProcedureID).
		Int64("hospital_id", entry.HospitalID).
		Str("unit_price", entry.UnitPrice.StringFixed(2)).
		Str("valid_from", from.Format(time.DateOnly)).
		Str("actor", string(actor)).
		Msg("tariff entry added")
	c.invalidate(ctx, entry.ProcedureID, entry.HospitalID)
	return entry, nil
}

// CloseEntry ends an open entry's validity on end (inclusive). Closing an
// entry again on the same day is a no-op; moving an existing end date is a
// ConflictError.
func (c *Catalog) CloseEntry(ctx context.Context, actor model.Actor, id int64, end time.Time) (*model.TariffEntry, error) {
	entry, err := c.store.GetTariff(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("close tariff: %w", err)
	}
	d := model.Day(end)
	if d.Before(model.Day(entry.ValidFrom)) {
		return nil, apperr.Invalid("valid_to", "%s is before valid_from %s", d.Format(time.DateOnly), entry.ValidFrom.Format(time.DateOnly))
	}
	if entry.ValidTo != nil {
		if entry.ValidTo.Equal(d) {
			return entry, nil
		}
		return nil, &apperr.ConflictError{
			Entity: "tariff",
			Reason: fmt.Sprintf("entry %d is already closed on %s", id, entry.ValidTo.Format(time.DateOnly)),
		}
	}
	if err := c.store.SetTariffEnd(ctx, id, &d); err != nil {
		return nil, fmt.Errorf("close tariff %d: %w", id, err)
	}
	entry.ValidTo = &d

	c.log.Info().
		Int64("tariff_id", id).
		Str("valid_to", d.Format(time.DateOnly)).
		Str("actor", string(actor)).
		Msg("tariff entry closed")
	c.invalidate(ctx, entry.ProcedureID, entry.HospitalID)
	return entry, nil
}

// ListEntries returns the entries of a pair ordered by start date, defaults first.
func (c *Catalog) ListEntries(ctx context.Context, procedureID, hospitalID int64) ([]model.TariffEntry, error) {
	entries, err := c.store.TariffsFor(ctx, procedureID, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("list tariffs: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ValidFrom.Equal(entries[j].ValidFrom) {
			return entries[i].ValidFrom.Before(entries[j].ValidFrom)
		}
		return entries[i].InsurerID == nil && entries[j].InsurerID != nil
	})
	return entries, nil
}

func (c *Catalog) invalidate(ctx context.Context, procedureID, hospitalID int64) {
	if c.inval == nil {
		return
	}
	if err := c.inval.Invalidate(ctx, procedureID, hospitalID); err != nil {
		c.log.Error().Err(err).
			Int64("procedure_id", procedureID).
			Int64("hospital_id", hospitalID).
			Msg("tariff cache invalidation failed")
	}
}

func duplicateScope(from time.Time) error {
	return &apperr.ConflictError{
		Entity: "tariff",
		Reason: fmt.Sprintf("an entry for this procedure, hospital and insurer already starts on %s", from.Format(time.DateOnly)),
	}
}
