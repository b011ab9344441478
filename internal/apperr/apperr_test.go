package apperr

import (
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	wrapped := fmt.Errorf("upsert: %w", &DuplicateItemError{RecordID: 1, ProcedureID: 2})
	if !IsConflict(wrapped) {
		t.Error("duplicate item should classify as conflict")
	}
	if IsNotFound(wrapped) || IsValidation(wrapped) {
		t.Error("duplicate item misclassified")
	}

	nf := fmt.Errorf("lookup: %w", NotFound("patient", int64(7)))
	if !IsNotFound(nf) {
		t.Error("expected not found")
	}
	if got := nf.Error(); got != "lookup: patient 7 not found" {
		t.Errorf("message: %q", got)
	}

	ve := Invalid("quantity", "must be 0 or 1, got %d", 2)
	if !IsValidation(ve) || ve.Field != "quantity" {
		t.Errorf("validation error: %+v", ve)
	}

	if !IsConflict(fmt.Errorf("insert: %w", ErrUniqueViolation)) {
		t.Error("unique violation should classify as conflict")
	}
}
