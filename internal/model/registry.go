package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Default flat rates carried by hospitals created before line-item billing.
var (
	DefaultVisitFee        = decimal.NewFromInt(75)
	DefaultHemodialysisFee = decimal.NewFromInt(120)
	DefaultHDFCFee         = decimal.NewFromInt(400)
	DefaultCatheterFee     = decimal.NewFromInt(150)
)

// FlatRates are the per-hospital fees of the legacy production model.
type FlatRates struct {
	VisitFee        decimal.Decimal
	HemodialysisFee decimal.Decimal
	HDFCFee         decimal.Decimal
	CatheterFee     decimal.Decimal
}

// DefaultFlatRates returns the rates a new hospital starts with.
func DefaultFlatRates() FlatRates {
	return FlatRates{
		VisitFee:        DefaultVisitFee,
		HemodialysisFee: DefaultHemodialysisFee,
		HDFCFee:         DefaultHDFCFee,
		CatheterFee:     DefaultCatheterFee,
	}
}

type Hospital struct {
	ID        int64
	Name      string
	Rates     FlatRates
	CreatedAt time.Time
	CreatedBy *string
}

type Sector struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	CreatedBy *string
}

// InsurancePlan is the payer a patient is covered by.
type InsurancePlan struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	CreatedBy *string
}

// Patient is a hospitalized patient. Hospital, sector and insurer references
// become nil when the referenced row is deleted.
type Patient struct {
	ID           int64
	Name         string
	HospitalID   *int64
	SectorID     *int64
	InsurerID    *int64
	Bed          *string
	Age          *int
	RecordNumber *string
	Diagnosis    string
	Discharged   bool
	CreatedAt    time.Time
	CreatedBy    *string
}
