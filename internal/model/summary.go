package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImportSummary captures metrics from a single file import run.
type ImportSummary struct {
	Kind          string // "tariff" or "legacy"
	FilePath      string
	FileSHA256    string
	ImportID      int64
	ImportBatchID string
	AlreadyLoaded bool
	RowsRead      int64
	RowsStaged    int64
	RowsRejected  int64
	RowsInserted  int64
	RowsSkipped   int64
	Mismatches    int64
	DurationTotal time.Duration
}

// BackfillSummary reports a total recomputation pass.
type BackfillSummary struct {
	RecordsScanned int
	RecordsChanged int
	Duration       time.Duration
}

// HospitalDay is one hospital's production on one day.
type HospitalDay struct {
	HospitalID   int64
	HospitalName string
	Day          time.Time
	Patients     int
	Total        decimal.Decimal
}

// Dashboard holds the home screen counters.
type Dashboard struct {
	Hospitals       int
	Patients        int
	ProductionTotal decimal.Decimal
}

// RecordListing is a production record joined with its patient and hospital.
type RecordListing struct {
	RecordID     int64
	Day          time.Time
	PatientID    int64
	PatientName  string
	HospitalName *string
	Total        decimal.Decimal
}
