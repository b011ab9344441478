package model

import "time"

// ProcedureKind tells how often a procedure can occur on one patient-day.
type ProcedureKind string

const (
	// KindBoolean procedures happen at most once a day (quantity 0 or 1).
	KindBoolean ProcedureKind = "boolean"
	// KindCountable procedures happen any number of times a day.
	KindCountable ProcedureKind = "countable"
)

// AllProcedureKinds lists the supported kinds in canonical order.
var AllProcedureKinds = []ProcedureKind{KindBoolean, KindCountable}

// ProcedureKindByName returns the kind for the given name, or ok=false.
func ProcedureKindByName(name string) (ProcedureKind, bool) {
	for _, k := range AllProcedureKinds {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}

// MaxQuantity returns the largest quantity allowed for the kind, or -1 when unbounded.
func (k ProcedureKind) MaxQuantity() int {
	if k == KindBoolean {
		return 1
	}
	return -1
}

// Procedure is a billable act. Rows referenced by line items are never
// deleted, only deactivated.
type Procedure struct {
	ID        int64
	Code      *string // normalized, unique when set
	Name      string
	Kind      ProcedureKind
	Active    bool
	CreatedAt time.Time
	CreatedBy *string
}
