package parquetread

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/hdprod/internal/model"
)

func TestReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariffs.parquet")
	insurer := "Plan X"
	rows := make([]model.TariffRow, 2500)
	for i := range rows {
		rows[i] = model.TariffRow{ProcedureCode: "LEGHD", HospitalName: "Santa Casa", UnitPrice: float64(i), ValidFrom: "2024-01-01"}
	}
	rows[3].InsurerName = &insurer
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := ReadAll[model.TariffRow](path, model.RequiredTariffColumns)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("read %d rows, want %d", len(got), len(rows))
	}
	if got[2499].UnitPrice != 2499 {
		t.Errorf("last price = %v", got[2499].UnitPrice)
	}
	if got[3].InsurerName == nil || *got[3].InsurerName != insurer || got[4].InsurerName != nil {
		t.Errorf("optional insurer not preserved")
	}
}

func TestReadAllMissingFile(t *testing.T) {
	if _, err := ReadAll[model.TariffRow](filepath.Join(t.TempDir(), "nope.parquet"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateSchema(t *testing.T) {
	type partial struct {
		ProcedureCode string  `parquet:"Procedure_Code"`
		UnitPrice     float64 `parquet:"unit_price"`
	}
	err := ValidateSchema(parquet.SchemaOf(partial{}), model.RequiredTariffColumns)
	if err == nil {
		t.Fatal("expected missing columns")
	}
	for _, col := range []string{"hospital_name", "valid_from"} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("error %q does not name %s", err, col)
		}
	}
	if strings.Contains(err.Error(), "procedure_code") {
		t.Errorf("column names should compare case-insensitively: %v", err)
	}

	if err := ValidateSchema(parquet.SchemaOf(model.LegacyProductionRow{}), model.RequiredLegacyColumns); err != nil {
		t.Errorf("legacy schema: %v", err)
	}
}
