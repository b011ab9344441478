package legacy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
	"github.com/gyeh/hdprod/internal/production"
	"github.com/gyeh/hdprod/internal/tariff"
)

// Procedures creates or finds the synthetic procedures.
type Procedures interface {
	EnsureProcedure(ctx context.Context, actor model.Actor, code, name string, kind model.ProcedureKind) (*model.Procedure, error)
}

// Tariffs records the derived tariff entries.
type Tariffs interface {
	AddEntry(ctx context.Context, actor model.Actor, in tariff.NewEntry) (*model.TariffEntry, error)
	CloseEntry(ctx context.Context, actor model.Actor, id int64, end time.Time) (*model.TariffEntry, error)
	ListEntries(ctx context.Context, procedureID, hospitalID int64) ([]model.TariffEntry, error)
}

// Days writes converted production days.
type Days interface {
	EnterDay(ctx context.Context, actor model.Actor, patientID int64, day time.Time, entries []production.DayEntry) (*model.ProductionRecord, []model.LineItem, error)
}

// Result counts what a migration did.
type Result struct {
	TariffsCreated int
	TariffsClosed  int
	TariffsSkipped int
	RateConflicts  int
	DaysConverted  int
	DaysRejected   int
	// Mismatches counts converted days whose record total differs from the
	// flat total.
	Mismatches int
	// RecordedMismatches counts rows whose stored legacy total differs from
	// the flat total recomputed from their flags.
	RecordedMismatches int
}

type Migrator struct {
	procs   Procedures
	tariffs Tariffs
	days    Days
	names   Names
	log     zerolog.Logger
}

func NewMigrator(procs Procedures, tariffs Tariffs, days Days, names Names, log zerolog.Logger) *Migrator {
	return &Migrator{
		procs:   procs,
		tariffs: tariffs,
		days:    days,
		names:   names,
		log:     log.With().Str("component", "legacy").Logger(),
	}
}

// Migrate converts rows: it ensures the synthetic procedures, applies the
// tariff plan derived from the rate history, then enters every day. Missing
// patients and invalid rows are counted and skipped; store failures abort.
// Running it again over the same rows changes nothing.
func (m *Migrator) Migrate(ctx context.Context, actor model.Actor, rows []Row) (*Result, error) {
	procIDs, err := m.EnsureProcedures(ctx, actor)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	plan := BuildPlan(rows)
	res.RateConflicts = plan.Conflicts
	if err := m.applyPlan(ctx, actor, procIDs, plan, res); err != nil {
		return nil, err
	}

	for i, r := range rows {
		if err := m.convertDay(ctx, actor, procIDs, r, res); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	m.log.Info().
		Int("days_converted", res.DaysConverted).
		Int("days_rejected", res.DaysRejected).
		Int("tariffs_created", res.TariffsCreated).
		Int("tariffs_closed", res.TariffsClosed).
		Int("mismatches", res.Mismatches).
		Int("recorded_mismatches", res.RecordedMismatches).
		Msg("legacy migration complete")
	return res, nil
}

// EnsureProcedures returns the procedure ID of every slot, creating the
// procedures on first use.
func (m *Migrator) EnsureProcedures(ctx context.Context, actor model.Actor) (map[Slot]int64, error) {
	ids := make(map[Slot]int64, len(Slots))
	for _, s := range Slots {
		n := m.names.For(s)
		p, err := m.procs.EnsureProcedure(ctx, actor, n.Code, n.Name, s.Kind())
		if err != nil {
			return nil, fmt.Errorf("ensure %s procedure: %w", s, err)
		}
		ids[s] = p.ID
	}
	return ids, nil
}

func (m *Migrator) applyPlan(ctx context.Context, actor model.Actor, procIDs map[Slot]int64, plan Plan, res *Result) error {
	for _, t := range plan.Tariffs {
		procID := procIDs[t.Slot]
		_, err := m.tariffs.AddEntry(ctx, actor, tariff.NewEntry{
			ProcedureID: procID,
			HospitalID:  t.HospitalID,
			UnitPrice:   t.UnitPrice,
			ValidFrom:   t.ValidFrom,
			ValidTo:     t.ValidTo,
		})
		switch {
		case err == nil:
			res.TariffsCreated++
		case apperr.IsConflict(err):
			closed, err := m.reconcile(ctx, actor, procID, t)
			if err != nil {
				return err
			}
			if closed {
				res.TariffsClosed++
			} else {
				res.TariffsSkipped++
			}
		case apperr.IsNotFound(err):
			m.log.Warn().Err(err).Int64("hospital_id", t.HospitalID).Msg("skipping tariffs of unknown hospital")
			res.TariffsSkipped++
		default:
			return fmt.Errorf("add %s tariff for hospital %d: %w", t.Slot, t.HospitalID, err)
		}
	}
	return nil
}

// reconcile closes an existing open entry that a later rate change now ends.
// An entry already closed on another day is left alone and logged.
func (m *Migrator) reconcile(ctx context.Context, actor model.Actor, procID int64, t PlannedTariff) (bool, error) {
	if t.ValidTo == nil {
		return false, nil
	}
	entries, err := m.tariffs.ListEntries(ctx, procID, t.HospitalID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.InsurerID != nil || !e.ValidFrom.Equal(t.ValidFrom) {
			continue
		}
		if e.ValidTo != nil {
			if !e.ValidTo.Equal(*t.ValidTo) {
				m.log.Warn().
					Int64("tariff_id", e.ID).
					Str("valid_to", e.ValidTo.Format(time.DateOnly)).
					Str("planned_valid_to", t.ValidTo.Format(time.DateOnly)).
					Msg("tariff already closed on another day, keeping it")
			}
			return false, nil
		}
		if _, err := m.tariffs.CloseEntry(ctx, actor, e.ID, *t.ValidTo); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (m *Migrator) convertDay(ctx context.Context, actor model.Actor, procIDs map[Slot]int64, r Row, res *Result) error {
	expected := r.Total()
	day := r.Day.Format(time.DateOnly)
	if r.Recorded != nil && !r.Recorded.Equal(expected) {
		res.RecordedMismatches++
		m.log.Warn().
			Int64("patient_id", r.PatientID).
			Str("day", day).
			Str("recorded", r.Recorded.StringFixed(2)).
			Str("flat_total", expected.StringFixed(2)).
			Msg("stored legacy total differs from flat total")
	}

	entries := make([]production.DayEntry, 0, len(Slots))
	for _, s := range Slots {
		qty := s.Quantity(r.Flags)
		if qty == 0 {
			entries = append(entries, production.DayEntry{ProcedureID: procIDs[s], Delete: true})
			continue
		}
		fee := s.Fee(r.Rates)
		entries = append(entries, production.DayEntry{ProcedureID: procIDs[s], Quantity: qty, ExplicitPrice: &fee, Manual: true})
	}

	rec, _, err := m.days.EnterDay(ctx, actor, r.PatientID, r.Day, entries)
	if apperr.IsNotFound(err) || apperr.IsValidation(err) {
		res.DaysRejected++
		m.log.Warn().Err(err).Int64("patient_id", r.PatientID).Str("day", day).Msg("legacy day rejected")
		return nil
	}
	if err != nil {
		return err
	}
	res.DaysConverted++

	if !rec.Total.Equal(expected) {
		res.Mismatches++
		m.log.Warn().
			Int64("record_id", rec.ID).
			Int64("patient_id", r.PatientID).
			Str("day", day).
			Str("total", rec.Total.StringFixed(2)).
			Str("flat_total", expected.StringFixed(2)).
			Msg("converted total differs from flat total")
	}
	return nil
}

// RowsFromParquet converts exported rows, filling missing rates from the
// hospital's current ones.
func RowsFromParquet(in []model.LegacyProductionRow, rates func(hospitalID int64) (model.FlatRates, bool)) ([]Row, []error) {
	out := make([]Row, 0, len(in))
	var errs []error
	for i, pr := range in {
		d := normalize.ParseDate(pr.Day)
		if d == nil {
			errs = append(errs, fmt.Errorf("row %d: day %q is not a date", i+1, pr.Day))
			continue
		}
		if pr.CatheterCount < 0 {
			errs = append(errs, fmt.Errorf("row %d: negative catheter count %d", i+1, pr.CatheterCount))
			continue
		}
		base, ok := rates(pr.HospitalID)
		if !ok {
			base = model.DefaultFlatRates()
		}
		r := Row{
			PatientID:  pr.PatientID,
			HospitalID: pr.HospitalID,
			Day:        model.Day(*d),
			Flags: Flags{
				Visit:        pr.Visit,
				Hemodialysis: pr.Hemodialysis,
				HDFC:         pr.HDFC,
				Catheters:    int(pr.CatheterCount),
			},
			Rates: model.FlatRates{
				VisitFee:        feeOr(pr.VisitFee, base.VisitFee),
				HemodialysisFee: feeOr(pr.HDFee, base.HemodialysisFee),
				HDFCFee:         feeOr(pr.HDFCFee, base.HDFCFee),
				CatheterFee:     feeOr(pr.CatheterFee, base.CatheterFee),
			},
		}
		if pr.DayTotal != nil {
			t := decimal.NewFromFloat(*pr.DayTotal).Round(2)
			r.Recorded = &t
		}
		out = append(out, r)
	}
	return out, errs
}

func feeOr(v *float64, def decimal.Decimal) decimal.Decimal {
	if v == nil {
		return def
	}
	return decimal.NewFromFloat(*v).Round(2)
}
