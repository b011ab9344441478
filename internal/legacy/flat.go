// Package legacy converts production recorded under the per-hospital flat-rate
// model into procedures, tariff entries and line items.
package legacy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/model"
)

// Flags are the billable facts of one flat-rate day.
type Flags struct {
	Visit        bool
	Hemodialysis bool
	HDFC         bool
	Catheters    int
}

// FlatTotal is the day total under the flat-rate model.
func FlatTotal(f Flags, r model.FlatRates) decimal.Decimal {
	total := decimal.Zero
	for _, s := range Slots {
		total = total.Add(s.Fee(r).Mul(decimal.NewFromInt(int64(s.Quantity(f)))))
	}
	return total
}

// Slot is one of the four flat-rate charges.
type Slot int

const (
	SlotVisit Slot = iota
	SlotHemodialysis
	SlotHDFC
	SlotCatheter
)

var Slots = []Slot{SlotVisit, SlotHemodialysis, SlotHDFC, SlotCatheter}

func (s Slot) String() string {
	switch s {
	case SlotVisit:
		return "visit"
	case SlotHemodialysis:
		return "hemodialysis"
	case SlotHDFC:
		return "hdfc"
	case SlotCatheter:
		return "catheter"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// Kind is the procedure kind the slot maps to.
func (s Slot) Kind() model.ProcedureKind {
	if s == SlotCatheter {
		return model.KindCountable
	}
	return model.KindBoolean
}

func (s Slot) Fee(r model.FlatRates) decimal.Decimal {
	switch s {
	case SlotVisit:
		return r.VisitFee
	case SlotHemodialysis:
		return r.HemodialysisFee
	case SlotHDFC:
		return r.HDFCFee
	default:
		return r.CatheterFee
	}
}

func (s Slot) Quantity(f Flags) int {
	switch s {
	case SlotVisit:
		return boolQty(f.Visit)
	case SlotHemodialysis:
		return boolQty(f.Hemodialysis)
	case SlotHDFC:
		return boolQty(f.HDFC)
	default:
		return f.Catheters
	}
}

func boolQty(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ProcedureName is the code and display name of a synthetic procedure.
type ProcedureName struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Names maps each slot to its synthetic procedure.
type Names struct {
	Visit        ProcedureName `yaml:"visit"`
	Hemodialysis ProcedureName `yaml:"hemodialysis"`
	HDFC         ProcedureName `yaml:"hdfc"`
	Catheter     ProcedureName `yaml:"catheter"`
}

func DefaultNames() Names {
	return Names{
		Visit:        ProcedureName{Code: "LEGVISIT", Name: "Parecer/Visita"},
		Hemodialysis: ProcedureName{Code: "LEGHD", Name: "Hemodiálise"},
		HDFC:         ProcedureName{Code: "LEGHDFC", Name: "HDFC"},
		Catheter:     ProcedureName{Code: "LEGCAT", Name: "Cateter"},
	}
}

// For returns the name of slot s, falling back to the default for blank fields.
func (n Names) For(s Slot) ProcedureName {
	def := DefaultNames()
	var got, fallback ProcedureName
	switch s {
	case SlotVisit:
		got, fallback = n.Visit, def.Visit
	case SlotHemodialysis:
		got, fallback = n.Hemodialysis, def.Hemodialysis
	case SlotHDFC:
		got, fallback = n.HDFC, def.HDFC
	default:
		got, fallback = n.Catheter, def.Catheter
	}
	if got.Code == "" {
		got.Code = fallback.Code
	}
	if got.Name == "" {
		got.Name = fallback.Name
	}
	return got
}

// Row is one historical flat-rate day with the rates in force on it.
type Row struct {
	PatientID  int64
	HospitalID int64
	Day        time.Time
	Flags      Flags
	Rates      model.FlatRates
	// Recorded is the total the old system stored, nil when not exported.
	Recorded *decimal.Decimal
}

// Total is FlatTotal of the row.
func (r Row) Total() decimal.Decimal {
	return FlatTotal(r.Flags, r.Rates)
}
