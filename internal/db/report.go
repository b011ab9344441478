package db

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
	"github.com/gyeh/hdprod/internal/report"
	embedsql "github.com/gyeh/hdprod/internal/sql"
)

func (s *Store) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	var d model.Dashboard
	var cents int64
	if err := s.conn(ctx).QueryRow(ctx, embedsql.Dashboard).Scan(&d.Hospitals, &d.Patients, &cents); err != nil {
		return nil, err
	}
	d.ProductionTotal = normalize.CentsToDecimal(cents)
	return &d, nil
}

// recordsIn joins records r with patients p and hospitals h and applies the
// period filter.
func recordsIn(from *goqu.SelectDataset, p report.Period) *goqu.SelectDataset {
	ds := from.
		Join(goqu.T("patients").As("p"), goqu.On(goqu.I("p.patient_id").Eq(goqu.I("r.patient_id")))).
		LeftJoin(goqu.T("hospitals").As("h"), goqu.On(goqu.I("h.hospital_id").Eq(goqu.I("p.hospital_id"))))
	if p.From != nil {
		ds = ds.Where(goqu.I("r.day").Gte(model.Day(*p.From)))
	}
	if p.To != nil {
		ds = ds.Where(goqu.I("r.day").Lte(model.Day(*p.To)))
	}
	if p.HospitalID != nil {
		ds = ds.Where(goqu.I("p.hospital_id").Eq(*p.HospitalID))
	}
	return ds
}

func (s *Store) query(ctx context.Context, ds *goqu.SelectDataset) (pgx.Rows, error) {
	query, args, err := build(ds)
	if err != nil {
		return nil, err
	}
	return s.conn(ctx).Query(ctx, query, args...)
}

func (s *Store) HospitalDays(ctx context.Context, p report.Period) ([]model.HospitalDay, error) {
	ds := recordsIn(dialect.From(goqu.T("production_records").As("r")), p).
		Select(
			goqu.L("COALESCE(h.hospital_id, 0)"),
			goqu.L("COALESCE(h.name, '')"),
			goqu.I("r.day"),
			goqu.L("count(DISTINCT r.patient_id)"),
			goqu.L("sum(r.total_cents)::bigint"),
		).
		GroupBy(goqu.I("h.hospital_id"), goqu.I("h.name"), goqu.I("r.day")).
		Order(goqu.I("r.day").Asc(), goqu.I("h.name").Asc().NullsLast())
	rows, err := s.query(ctx, ds)
	return collect(rows, err, func(row pgx.Row) (*model.HospitalDay, error) {
		var d model.HospitalDay
		var cents int64
		if err := row.Scan(&d.HospitalID, &d.HospitalName, &d.Day, &d.Patients, &cents); err != nil {
			return nil, err
		}
		d.Total = normalize.CentsToDecimal(cents)
		return &d, nil
	})
}

func (s *Store) Records(ctx context.Context, p report.Period, limit int) ([]model.RecordListing, error) {
	ds := recordsIn(dialect.From(goqu.T("production_records").As("r")), p).
		Select(goqu.I("r.record_id"), goqu.I("r.day"), goqu.I("r.patient_id"), goqu.I("p.name"), goqu.I("h.name"), goqu.I("r.total_cents")).
		Order(goqu.I("r.day").Desc(), goqu.I("r.record_id").Desc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	rows, err := s.query(ctx, ds)
	return collect(rows, err, func(row pgx.Row) (*model.RecordListing, error) {
		var l model.RecordListing
		var cents int64
		if err := row.Scan(&l.RecordID, &l.Day, &l.PatientID, &l.PatientName, &l.HospitalName, &cents); err != nil {
			return nil, err
		}
		l.Total = normalize.CentsToDecimal(cents)
		return &l, nil
	})
}

func (s *Store) Lines(ctx context.Context, p report.Period) ([]report.Line, error) {
	from := dialect.From(goqu.T("production_items").As("i")).
		Join(goqu.T("production_records").As("r"), goqu.On(goqu.I("r.record_id").Eq(goqu.I("i.record_id")))).
		Join(goqu.T("procedures").As("pr"), goqu.On(goqu.I("pr.procedure_id").Eq(goqu.I("i.procedure_id"))))
	ds := recordsIn(from, p).
		Select(
			goqu.I("r.record_id"), goqu.I("r.day"), goqu.I("h.name"), goqu.I("p.patient_id"), goqu.I("p.name"),
			goqu.I("pr.code"), goqu.I("pr.name"), goqu.I("i.quantity"), goqu.I("i.unit_price_cents"), goqu.I("i.price_source"),
		).
		Order(goqu.I("r.day").Asc(), goqu.I("h.name").Asc().NullsLast(), goqu.I("p.name").Asc(), goqu.I("pr.name").Asc())
	rows, err := s.query(ctx, ds)
	return collect(rows, err, func(row pgx.Row) (*report.Line, error) {
		var l report.Line
		var cents int64
		var source string
		if err := row.Scan(&l.RecordID, &l.Day, &l.HospitalName, &l.PatientID, &l.PatientName,
			&l.ProcedureCode, &l.ProcedureName, &l.Quantity, &cents, &source); err != nil {
			return nil, err
		}
		l.UnitPrice = normalize.CentsToDecimal(cents)
		l.PriceSource = model.PriceSource(source)
		return &l, nil
	})
}
