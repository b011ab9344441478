package model

// TariffRow mirrors the Parquet schema of a tariff catalog file. Prices are
// float64 as written by spreadsheets; they get converted to cents during
// normalization.
type TariffRow struct {
	ProcedureCode string  `parquet:"procedure_code"`
	HospitalName  string  `parquet:"hospital_name"`
	InsurerName   *string `parquet:"insurer_name,optional"`
	UnitPrice     float64 `parquet:"unit_price"`
	ValidFrom     string  `parquet:"valid_from"`
	ValidTo       *string `parquet:"valid_to,optional"`
}

// LegacyProductionRow mirrors one row of the flat-rate production table as
// exported from the old system: boolean flags, a catheter count and the
// hospital rates in force on that day.
type LegacyProductionRow struct {
	PatientID     int64    `parquet:"patient_id"`
	HospitalID    int64    `parquet:"hospital_id"`
	Day           string   `parquet:"day"`
	Visit         bool     `parquet:"parecer_visita"`
	Hemodialysis  bool     `parquet:"hemodialise"`
	HDFC          bool     `parquet:"hdfc"`
	CatheterCount int32    `parquet:"cateter"`
	VisitFee      *float64 `parquet:"valor_parecer,optional"`
	HDFee         *float64 `parquet:"valor_hemodialise,optional"`
	HDFCFee       *float64 `parquet:"valor_hdfc,optional"`
	CatheterFee   *float64 `parquet:"valor_cateter,optional"`
	DayTotal      *float64 `parquet:"total_dia,optional"`
}

// RequiredTariffColumns are the columns a tariff file must carry.
var RequiredTariffColumns = []string{"procedure_code", "hospital_name", "unit_price", "valid_from"}

// RequiredLegacyColumns are the columns a legacy production file must carry.
var RequiredLegacyColumns = []string{"patient_id", "hospital_id", "day"}
