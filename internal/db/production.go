package db

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
	"github.com/gyeh/hdprod/internal/production"
)

const recordCols = `record_id, patient_id, day, total_cents, created_at, created_by`

func scanRecord(row pgx.Row) (*model.ProductionRecord, error) {
	var r model.ProductionRecord
	var cents int64
	if err := row.Scan(&r.ID, &r.PatientID, &r.Day, &cents, &r.CreatedAt, &r.CreatedBy); err != nil {
		return nil, err
	}
	r.Total = normalize.CentsToDecimal(cents)
	return &r, nil
}

func (s *Store) GetRecord(ctx context.Context, id int64) (*model.ProductionRecord, error) {
	r, err := scanRecord(s.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM production_records WHERE record_id = $1`, id))
	return r, mapErr(err, "production record", id)
}

// LockRecord takes a row lock held until the surrounding transaction ends.
func (s *Store) LockRecord(ctx context.Context, id int64) (*model.ProductionRecord, error) {
	r, err := scanRecord(s.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM production_records WHERE record_id = $1 FOR UPDATE`, id))
	return r, mapErr(err, "production record", id)
}

func (s *Store) FindRecord(ctx context.Context, patientID int64, day time.Time) (*model.ProductionRecord, error) {
	day = model.Day(day)
	r, err := scanRecord(s.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM production_records WHERE patient_id = $1 AND day = $2`, patientID, day))
	return r, mapErr(err, "production record", day.Format(time.DateOnly))
}

func (s *Store) InsertRecord(ctx context.Context, r *model.ProductionRecord) error {
	r.Day = model.Day(r.Day)
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO production_records (patient_id, day, total_cents, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING record_id, created_at`,
		r.PatientID, r.Day, normalize.DecimalToCents(r.Total), r.CreatedBy).Scan(&r.ID, &r.CreatedAt)
	return mapErr(err, "production record", r.PatientID)
}

func (s *Store) SetRecordTotal(ctx context.Context, recordID int64, total decimal.Decimal) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE production_records SET total_cents = $2 WHERE record_id = $1`, recordID, normalize.DecimalToCents(total))
	return affected(tag, err, "production record", recordID)
}

// RecordIDs selects the records of a backfill pass in id order.
func (s *Store) RecordIDs(ctx context.Context, f production.RecordFilter) ([]int64, error) {
	ds := dialect.From(goqu.T("production_records").As("r")).
		Select(goqu.I("r.record_id")).
		Order(goqu.I("r.record_id").Asc())
	if f.HospitalID != nil {
		ds = ds.Join(goqu.T("patients").As("p"), goqu.On(goqu.I("p.patient_id").Eq(goqu.I("r.patient_id")))).
			Where(goqu.I("p.hospital_id").Eq(*f.HospitalID))
	}
	if f.PatientID != nil {
		ds = ds.Where(goqu.I("r.patient_id").Eq(*f.PatientID))
	}
	if f.From != nil {
		ds = ds.Where(goqu.I("r.day").Gte(model.Day(*f.From)))
	}
	if f.To != nil {
		ds = ds.Where(goqu.I("r.day").Lte(model.Day(*f.To)))
	}
	query, args, err := build(ds)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

const itemCols = `item_id, record_id, procedure_id, quantity, unit_price_cents, price_source, created_at, updated_at, created_by`

func scanItem(row pgx.Row) (*model.LineItem, error) {
	var li model.LineItem
	var cents int64
	var source string
	if err := row.Scan(&li.ID, &li.RecordID, &li.ProcedureID, &li.Quantity, &cents, &source,
		&li.CreatedAt, &li.UpdatedAt, &li.CreatedBy); err != nil {
		return nil, err
	}
	li.UnitPrice = normalize.CentsToDecimal(cents)
	li.PriceSource = model.PriceSource(source)
	return &li, nil
}

func (s *Store) ListItems(ctx context.Context, recordID int64) ([]model.LineItem, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM production_items WHERE record_id = $1 ORDER BY item_id`, recordID)
	return collect(rows, err, scanItem)
}

func (s *Store) GetItem(ctx context.Context, id int64) (*model.LineItem, error) {
	li, err := scanItem(s.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM production_items WHERE item_id = $1`, id))
	return li, mapErr(err, "line item", id)
}

func (s *Store) FindItem(ctx context.Context, recordID, procedureID int64) (*model.LineItem, error) {
	li, err := scanItem(s.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM production_items WHERE record_id = $1 AND procedure_id = $2`, recordID, procedureID))
	return li, mapErr(err, "line item", procedureID)
}

func (s *Store) InsertItem(ctx context.Context, li *model.LineItem) error {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO production_items (record_id, procedure_id, quantity, unit_price_cents, price_source, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING item_id, created_at, updated_at`,
		li.RecordID, li.ProcedureID, li.Quantity, normalize.DecimalToCents(li.UnitPrice), string(li.PriceSource), li.CreatedBy,
	).Scan(&li.ID, &li.CreatedAt, &li.UpdatedAt)
	return mapErr(err, "line item", li.ProcedureID)
}

func (s *Store) UpdateItem(ctx context.Context, li *model.LineItem) error {
	err := s.conn(ctx).QueryRow(ctx, `
		UPDATE production_items
		SET quantity = $2, unit_price_cents = $3, price_source = $4, updated_at = now()
		WHERE item_id = $1
		RETURNING updated_at`,
		li.ID, li.Quantity, normalize.DecimalToCents(li.UnitPrice), string(li.PriceSource)).Scan(&li.UpdatedAt)
	return mapErr(err, "line item", li.ID)
}

func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM production_items WHERE item_id = $1`, id)
	return affected(tag, err, "line item", id)
}
