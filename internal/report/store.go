package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/model"
)

// Period selects production days, both bounds inclusive. Nil bounds are open.
type Period struct {
	From       *time.Time
	To         *time.Time
	HospitalID *int64
}

// Line is one line item with the names needed to read it outside the system.
type Line struct {
	RecordID      int64
	Day           time.Time
	HospitalName  *string
	PatientID     int64
	PatientName   string
	ProcedureCode *string
	ProcedureName string
	Quantity      int
	UnitPrice     decimal.Decimal
	PriceSource   model.PriceSource
}

// Amount is quantity times unit price.
func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Store is the read side used by reports. Patients without a hospital are
// grouped under hospital ID 0.
type Store interface {
	Dashboard(ctx context.Context) (*model.Dashboard, error)
	HospitalDays(ctx context.Context, p Period) ([]model.HospitalDay, error)
	Records(ctx context.Context, p Period, limit int) ([]model.RecordListing, error)
	Lines(ctx context.Context, p Period) ([]Line, error)
}
