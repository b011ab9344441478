package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDay(t *testing.T) {
	sp := time.FixedZone("BRT", -3*3600)
	late := time.Date(2024, 3, 5, 23, 30, 0, 0, sp) // 02:30 UTC on the 6th
	if got, want := Day(late), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Day = %v, want %v (local calendar date)", got, want)
	}
	if got := DaysBetween(time.Date(2023, 12, 31, 22, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)); got != 1 {
		t.Errorf("DaysBetween across midnight = %d, want 1", got)
	}
}

func TestActorRef(t *testing.T) {
	if Actor("").Ref() != nil {
		t.Error("empty actor should be NULL")
	}
	if r := System.Ref(); r == nil || *r != "system" {
		t.Errorf("System.Ref() = %v", r)
	}
}

func TestTariffEntryCovers(t *testing.T) {
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	e := TariffEntry{ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ValidTo: &end}
	tests := []struct {
		day  time.Time
		want bool
	}{
		{time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 6, 30, 18, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		if got := e.Covers(tt.day); got != tt.want {
			t.Errorf("Covers(%s) = %v, want %v", tt.day.Format(time.DateOnly), got, tt.want)
		}
	}
	e.ValidTo = nil
	if !e.Covers(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("open-ended entry should cover the future")
	}
}

func TestSameInsurer(t *testing.T) {
	a, b := int64(1), int64(2)
	def := TariffEntry{}
	scoped := TariffEntry{InsurerID: &a}
	if !def.SameInsurer(nil) || def.SameInsurer(&a) {
		t.Error("default entry matches only nil")
	}
	if !scoped.SameInsurer(&a) || scoped.SameInsurer(&b) || scoped.SameInsurer(nil) {
		t.Error("scoped entry matches only its insurer")
	}
}

func TestMoneyHelpers(t *testing.T) {
	if !IsCents(decimal.RequireFromString("10.50")) || IsCents(decimal.RequireFromString("10.505")) {
		t.Error("IsCents")
	}
	items := []LineItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("150.25")},
		{Quantity: 0, UnitPrice: decimal.NewFromInt(999)},
		{Quantity: 1, UnitPrice: decimal.Zero},
	}
	if got := SumItems(items); !got.Equal(decimal.RequireFromString("300.50")) {
		t.Errorf("SumItems = %s", got)
	}
	if !SumItems(nil).IsZero() {
		t.Error("empty sum should be zero")
	}
}

func TestProcedureKinds(t *testing.T) {
	if KindBoolean.MaxQuantity() != 1 || KindCountable.MaxQuantity() != -1 {
		t.Error("MaxQuantity")
	}
	if k, ok := ProcedureKindByName("countable"); !ok || k != KindCountable {
		t.Errorf("ProcedureKindByName(countable) = %q, %v", k, ok)
	}
	if _, ok := ProcedureKindByName("daily"); ok {
		t.Error("unknown kind accepted")
	}
}

func TestStagingColumnsMatchValues(t *testing.T) {
	var r StagingTariffRow
	if got, want := len(r.CopyValues()), len(StagingTariffColumns()); got != want {
		t.Fatalf("CopyValues has %d values, columns %d", got, want)
	}
}
