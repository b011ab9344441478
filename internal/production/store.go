package production

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/model"
)

// RecordFilter narrows a backfill pass. Zero values match everything.
type RecordFilter struct {
	HospitalID *int64
	PatientID  *int64
	From       *time.Time
	To         *time.Time
}

// Store is the persistence the production service needs. Lookups return an
// apperr.NotFoundError for missing rows; inserts return apperr.ErrUniqueViolation
// when a uniqueness constraint trips.
type Store interface {
	// InTx runs fn in one transaction. Store calls made with the ctx passed
	// to fn join that transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetPatient(ctx context.Context, id int64) (*model.Patient, error)
	GetProcedure(ctx context.Context, id int64) (*model.Procedure, error)

	GetRecord(ctx context.Context, id int64) (*model.ProductionRecord, error)
	// LockRecord reads a record and holds it against concurrent item
	// mutations until the surrounding transaction ends.
	LockRecord(ctx context.Context, id int64) (*model.ProductionRecord, error)
	FindRecord(ctx context.Context, patientID int64, day time.Time) (*model.ProductionRecord, error)
	InsertRecord(ctx context.Context, r *model.ProductionRecord) error
	SetRecordTotal(ctx context.Context, recordID int64, total decimal.Decimal) error
	RecordIDs(ctx context.Context, f RecordFilter) ([]int64, error)

	ListItems(ctx context.Context, recordID int64) ([]model.LineItem, error)
	GetItem(ctx context.Context, id int64) (*model.LineItem, error)
	FindItem(ctx context.Context, recordID, procedureID int64) (*model.LineItem, error)
	InsertItem(ctx context.Context, li *model.LineItem) error
	UpdateItem(ctx context.Context, li *model.LineItem) error
	DeleteItem(ctx context.Context, id int64) error
}
