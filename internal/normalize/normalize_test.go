package normalize

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/model"
)

func strPtr(s string) *string { return &s }

func TestCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"03.05.01.010-7", "0305010107"},
		{"  leg hd ", "LEGHD"},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Code(tt.in); got != tt.want {
			t.Errorf("Code(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if NormalizeCode(nil) != nil || NormalizeCode(strPtr(" . ")) != nil {
		t.Error("blank codes should normalize to nil")
	}
}

func TestNames(t *testing.T) {
	if got := DisplayName("  Santa   Casa\t"); got != "Santa Casa" {
		t.Errorf("DisplayName = %q", got)
	}
	got := NormalizeName(strPtr(" SANTA  casa "))
	if got == nil || *got != "santa casa" {
		t.Errorf("NormalizeName = %v", got)
	}
	if NormalizeName(strPtr("   ")) != nil {
		t.Error("blank name should normalize to nil")
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-03-05", "05/03/2024", "5/3/2024", "05-03-2024", "2024/03/05", "2024-03-05T23:10:00Z", "2024-03-05 08:00:00"} {
		got := ParseDate(in)
		if got == nil {
			t.Errorf("ParseDate(%q) = nil", in)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "  ", "March 5", "2024-13-01"} {
		if got := ParseDate(in); got != nil {
			t.Errorf("ParseDate(%q) = %v, want nil", in, got)
		}
	}
}

func TestMoney(t *testing.T) {
	if got := DollarsToCents(19.99); got != 1999 {
		t.Errorf("DollarsToCents(19.99) = %d", got)
	}
	if got := DollarsToCents(0.1 + 0.2); got != 30 {
		t.Errorf("DollarsToCents(0.3) = %d", got)
	}
	if got := CentsToDecimal(12345); !got.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("CentsToDecimal = %s", got)
	}
	if got := DecimalToCents(decimal.RequireFromString("10.005")); got != 1001 {
		t.Errorf("DecimalToCents(10.005) = %d", got)
	}
	if OptCents(nil) != nil {
		t.Error("OptCents(nil) should be nil")
	}
	if got := FloatToDecimal(99.999); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("FloatToDecimal = %s", got)
	}
}

func TestToStagingTariffRow(t *testing.T) {
	batch := uuid.New()
	insurer := "  Plan   X "
	empty := ""
	row := &model.TariffRow{
		ProcedureCode: "leg-hd",
		HospitalName:  " Santa  Casa ",
		InsurerName:   &insurer,
		UnitPrice:     150.25,
		ValidFrom:     "01/03/2024",
		ValidTo:       &empty,
	}
	s, err := ToStagingTariffRow(row, batch, 7)
	if err != nil {
		t.Fatalf("ToStagingTariffRow: %v", err)
	}
	if s.ProcedureCode != "LEGHD" || s.HospitalName != "Santa Casa" {
		t.Errorf("names not normalized: %+v", s)
	}
	if s.InsurerName == nil || *s.InsurerName != "Plan X" {
		t.Errorf("insurer = %v", s.InsurerName)
	}
	if s.UnitPriceCents != 15025 || s.SourceRowNumber != 7 || s.ImportBatchID != batch {
		t.Errorf("unexpected row %+v", s)
	}
	if !s.ValidFrom.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) || s.ValidTo != nil {
		t.Errorf("window = %v..%v", s.ValidFrom, s.ValidTo)
	}

	before := "2024-02-01"
	bad := []model.TariffRow{
		{ProcedureCode: "--", HospitalName: "A", ValidFrom: "2024-01-01"},
		{ProcedureCode: "X", HospitalName: " ", ValidFrom: "2024-01-01"},
		{ProcedureCode: "X", HospitalName: "A", UnitPrice: -1, ValidFrom: "2024-01-01"},
		{ProcedureCode: "X", HospitalName: "A", ValidFrom: "soon"},
		{ProcedureCode: "X", HospitalName: "A", ValidFrom: "2024-03-01", ValidTo: &before},
	}
	for i := range bad {
		if _, err := ToStagingTariffRow(&bad[i], batch, int64(i+1)); err == nil {
			t.Errorf("row %d: expected rejection", i+1)
		}
	}
}
