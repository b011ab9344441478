package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/exitcode"
	"github.com/gyeh/hdprod/internal/ingest"
	"github.com/gyeh/hdprod/internal/model"
)

func TestParseEntry(t *testing.T) {
	e, err := parseEntry("3=2")
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if e.ProcedureID != 3 || e.Quantity != 2 || e.ExplicitPrice != nil {
		t.Errorf("got %+v", e)
	}

	e, err = parseEntry("4=1@180.50")
	if err != nil {
		t.Fatalf("parseEntry: %v", err)
	}
	if e.ExplicitPrice == nil || !e.ExplicitPrice.Equal(decimal.RequireFromString("180.50")) {
		t.Errorf("price = %v, want 180.50", e.ExplicitPrice)
	}

	for _, bad := range []string{"3", "x=1", "3=y", "3=1@abc"} {
		if _, err := parseEntry(bad); !apperr.IsValidation(err) {
			t.Errorf("parseEntry(%q) = %v, want validation error", bad, err)
		}
	}
}

func TestParseDay(t *testing.T) {
	d, err := parseDay("day", "2024-03-05")
	if err != nil {
		t.Fatalf("parseDay: %v", err)
	}
	if want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC); !d.Equal(want) {
		t.Errorf("got %v, want %v", d, want)
	}

	if d, err := parseDay("day", ""); err != nil || !d.IsZero() {
		t.Errorf("empty day = %v, %v", d, err)
	}
	if p, err := optDay("to", ""); err != nil || p != nil {
		t.Errorf("optDay empty = %v, %v", p, err)
	}
	if _, err := parseDay("day", "yesterday"); !apperr.IsValidation(err) {
		t.Errorf("want validation error, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Invalid("quantity", "must be 0 or 1"), exitcode.ValidationError},
		{fmt.Errorf("wrapped: %w", apperr.NotFound("patient", 9)), exitcode.NotFound},
		{&apperr.DuplicateItemError{RecordID: 1, ProcedureID: 2}, exitcode.Conflict},
		{&ingest.PipelineError{Phase: "preflight", Err: errors.New("bad schema")}, exitcode.ValidationError},
		{&ingest.PipelineError{Phase: "stage", Err: errors.New("copy")}, exitcode.CopyError},
		{&ingest.PipelineError{Phase: "transform", Err: errors.New("sql")}, exitcode.TransformError},
		{errors.New("boom"), exitcode.TransformError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestApplyRateFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "rates"}
	addRateFlags(cmd)

	rates := model.DefaultFlatRates()
	changed, err := applyRateFlags(cmd, &rates)
	if err != nil || changed {
		t.Fatalf("no flags: changed=%v err=%v", changed, err)
	}

	if err := cmd.Flags().Set("hd-fee", "130"); err != nil {
		t.Fatal(err)
	}
	changed, err = applyRateFlags(cmd, &rates)
	if err != nil || !changed {
		t.Fatalf("hd-fee: changed=%v err=%v", changed, err)
	}
	if !rates.HemodialysisFee.Equal(decimal.NewFromInt(130)) {
		t.Errorf("hd fee = %s", rates.HemodialysisFee)
	}
	if !rates.VisitFee.Equal(model.DefaultVisitFee) {
		t.Errorf("visit fee changed to %s", rates.VisitFee)
	}

	if err := cmd.Flags().Set("catheter-fee", "a lot"); err != nil {
		t.Fatal(err)
	}
	_, err = applyRateFlags(cmd, &rates)
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) || verr.Field != "catheter-fee" {
		t.Errorf("bad fee: got %v", err)
	}
}
