package normalize

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gyeh/hdprod/internal/model"
)

// ToStagingTariffRow converts a Parquet-read TariffRow into a normalized
// StagingTariffRow. Rows that cannot be priced are rejected with an error.
func ToStagingTariffRow(row *model.TariffRow, batchID uuid.UUID, rowNum int64) (*model.StagingTariffRow, error) {
	code := Code(row.ProcedureCode)
	if code == "" {
		return nil, fmt.Errorf("row %d: procedure_code is empty", rowNum)
	}
	hospital := DisplayName(row.HospitalName)
	if hospital == "" {
		return nil, fmt.Errorf("row %d: hospital_name is empty", rowNum)
	}
	if row.UnitPrice < 0 {
		return nil, fmt.Errorf("row %d: unit_price %.2f is negative", rowNum, row.UnitPrice)
	}
	from := ParseDate(row.ValidFrom)
	if from == nil {
		return nil, fmt.Errorf("row %d: valid_from %q is not a date", rowNum, row.ValidFrom)
	}

	s := &model.StagingTariffRow{
		ImportBatchID:   batchID,
		SourceRowNumber: rowNum,
		ProcedureCode:   code,
		HospitalName:    hospital,
		UnitPriceCents:  DollarsToCents(row.UnitPrice),
		ValidFrom:       *from,
	}
	if row.InsurerName != nil {
		if name := DisplayName(*row.InsurerName); name != "" {
			s.InsurerName = &name
		}
	}
	if row.ValidTo != nil && *row.ValidTo != "" {
		to := ParseDate(*row.ValidTo)
		if to == nil {
			return nil, fmt.Errorf("row %d: valid_to %q is not a date", rowNum, *row.ValidTo)
		}
		if to.Before(*from) {
			return nil, fmt.Errorf("row %d: valid_to %s is before valid_from %s", rowNum, *row.ValidTo, row.ValidFrom)
		}
		s.ValidTo = to
	}
	return s, nil
}
