package production

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/tariff"
)

// ValidateQuantity checks a quantity against the procedure kind. Boolean
// procedures only take 0 or 1; nothing is coerced.
func ValidateQuantity(kind model.ProcedureKind, quantity int) error {
	if quantity < 0 {
		return apperr.Invalid("quantity", "must be >= 0, got %d", quantity)
	}
	if max := kind.MaxQuantity(); max >= 0 && quantity > max {
		return apperr.Invalid("quantity", "%s procedure takes 0 or 1, got %d", kind, quantity)
	}
	return nil
}

func overridesPrice(in ItemInput) bool {
	if in.ExplicitPrice == nil {
		return false
	}
	return in.Manual || !in.ExplicitPrice.IsZero()
}

// snapshotPrice freezes the item's unit price: an overriding explicit price
// is kept as manual, otherwise the tariff of the record day for the
// patient's hospital and insurer is used.
func (s *Service) snapshotPrice(ctx context.Context, rec *model.ProductionRecord, item *model.LineItem, in ItemInput) error {
	if overridesPrice(in) {
		item.UnitPrice = *in.ExplicitPrice
		item.PriceSource = model.PriceManual
		return nil
	}

	patient, err := s.store.GetPatient(ctx, rec.PatientID)
	if err != nil {
		return err
	}
	if patient.HospitalID == nil {
		s.log.Warn().
			Int64("patient_id", patient.ID).
			Int64("procedure_id", item.ProcedureID).
			Str("day", rec.Day.Format(time.DateOnly)).
			Msg("patient has no hospital, pricing at zero")
		item.UnitPrice = decimal.Zero
		item.PriceSource = model.PriceNone
		return nil
	}

	res, err := s.resolver.Resolve(ctx, tariff.Query{
		ProcedureID: item.ProcedureID,
		HospitalID:  *patient.HospitalID,
		InsurerID:   patient.InsurerID,
		Day:         rec.Day,
	})
	if err != nil {
		return fmt.Errorf("resolve tariff: %w", err)
	}
	item.UnitPrice = res.Price
	if res.Found() {
		item.PriceSource = model.PriceFromTariff
	} else {
		item.PriceSource = model.PriceNone
	}
	return nil
}
