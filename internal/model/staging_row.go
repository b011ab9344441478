package model

import (
	"time"

	"github.com/google/uuid"
)

// StagingTariffRow is the normalized, DB-ready form of a TariffRow.
// Procedure, hospital and insurer are still names/codes; they are resolved to
// ids by the set-based transform.
type StagingTariffRow struct {
	ImportBatchID   uuid.UUID
	SourceRowNumber int64
	ProcedureCode   string
	HospitalName    string
	InsurerName     *string
	UnitPriceCents  int64
	ValidFrom       time.Time
	ValidTo         *time.Time
}

// StagingTariffColumns returns the ordered column names for COPY into ingest.stage_tariff_rows.
func StagingTariffColumns() []string {
	return []string{
		"import_batch_id",
		"source_row_number",
		"procedure_code",
		"hospital_name",
		"insurer_name",
		"unit_price_cents",
		"valid_from",
		"valid_to",
	}
}

// CopyValues returns the row values in the same order as StagingTariffColumns().
func (r *StagingTariffRow) CopyValues() []any {
	return []any{
		r.ImportBatchID,
		r.SourceRowNumber,
		r.ProcedureCode,
		r.HospitalName,
		r.InsurerName,
		r.UnitPriceCents,
		r.ValidFrom,
		r.ValidTo,
	}
}
