package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TariffEntry is the price of a procedure at a hospital over a validity
// window. A nil InsurerID makes the entry the hospital default.
type TariffEntry struct {
	ID          int64
	ProcedureID int64
	HospitalID  int64
	InsurerID   *int64
	UnitPrice   decimal.Decimal
	ValidFrom   time.Time
	ValidTo     *time.Time // inclusive; nil means open-ended
	CreatedAt   time.Time
	CreatedBy   *string
}

// Covers reports whether day falls inside the entry's validity window.
func (e TariffEntry) Covers(day time.Time) bool {
	day = Day(day)
	if Day(e.ValidFrom).After(day) {
		return false
	}
	return e.ValidTo == nil || !Day(*e.ValidTo).Before(day)
}

// SameInsurer reports whether the entry is scoped to insurerID (nil matches
// only default entries).
func (e TariffEntry) SameInsurer(insurerID *int64) bool {
	if e.InsurerID == nil || insurerID == nil {
		return e.InsurerID == nil && insurerID == nil
	}
	return *e.InsurerID == *insurerID
}
