package db

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
	"github.com/gyeh/hdprod/internal/registry"
)

const hospitalCols = `hospital_id, name, visit_fee_cents, hemodialysis_fee_cents, hdfc_fee_cents, catheter_fee_cents, created_at, created_by`

func scanHospital(row pgx.Row) (*model.Hospital, error) {
	var h model.Hospital
	var visit, hd, hdfc, cat int64
	if err := row.Scan(&h.ID, &h.Name, &visit, &hd, &hdfc, &cat, &h.CreatedAt, &h.CreatedBy); err != nil {
		return nil, err
	}
	h.Rates = model.FlatRates{
		VisitFee:        normalize.CentsToDecimal(visit),
		HemodialysisFee: normalize.CentsToDecimal(hd),
		HDFCFee:         normalize.CentsToDecimal(hdfc),
		CatheterFee:     normalize.CentsToDecimal(cat),
	}
	return &h, nil
}

func rateCents(r model.FlatRates) []any {
	return []any{
		normalize.DecimalToCents(r.VisitFee),
		normalize.DecimalToCents(r.HemodialysisFee),
		normalize.DecimalToCents(r.HDFCFee),
		normalize.DecimalToCents(r.CatheterFee),
	}
}

func (s *Store) InsertHospital(ctx context.Context, h *model.Hospital) error {
	args := append([]any{h.Name}, rateCents(h.Rates)...)
	args = append(args, h.CreatedBy)
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospitals (name, visit_fee_cents, hemodialysis_fee_cents, hdfc_fee_cents, catheter_fee_cents, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING hospital_id, created_at`, args...).Scan(&h.ID, &h.CreatedAt)
	return mapErr(err, "hospital", h.Name)
}

func (s *Store) GetHospital(ctx context.Context, id int64) (*model.Hospital, error) {
	h, err := scanHospital(s.conn(ctx).QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospitals WHERE hospital_id = $1`, id))
	return h, mapErr(err, "hospital", id)
}

func (s *Store) UpdateHospital(ctx context.Context, h *model.Hospital) error {
	args := append([]any{h.ID, h.Name}, rateCents(h.Rates)...)
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE hospitals SET name = $2, visit_fee_cents = $3, hemodialysis_fee_cents = $4,
			hdfc_fee_cents = $5, catheter_fee_cents = $6
		WHERE hospital_id = $1`, args...)
	return affected(tag, err, "hospital", h.ID)
}

func (s *Store) DeleteHospital(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM hospitals WHERE hospital_id = $1`, id)
	return affected(tag, err, "hospital", id)
}

func (s *Store) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+hospitalCols+` FROM hospitals ORDER BY name, hospital_id`)
	return collect(rows, err, scanHospital)
}

// FindHospitalByName matches names case-insensitively; the oldest hospital wins.
func (s *Store) FindHospitalByName(ctx context.Context, name string) (*model.Hospital, error) {
	h, err := scanHospital(s.conn(ctx).QueryRow(ctx,
		`SELECT `+hospitalCols+` FROM hospitals WHERE lower(name) = lower($1) ORDER BY hospital_id LIMIT 1`, name))
	return h, mapErr(err, "hospital", name)
}

// -- Sectors and insurance plans --

func (s *Store) InsertSector(ctx context.Context, sec *model.Sector) error {
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO sectors (name, created_by) VALUES ($1, $2) RETURNING sector_id, created_at`,
		sec.Name, sec.CreatedBy).Scan(&sec.ID, &sec.CreatedAt)
	return mapErr(err, "sector", sec.Name)
}

func scanSector(row pgx.Row) (*model.Sector, error) {
	var sec model.Sector
	err := row.Scan(&sec.ID, &sec.Name, &sec.CreatedAt, &sec.CreatedBy)
	return &sec, err
}

func (s *Store) GetSector(ctx context.Context, id int64) (*model.Sector, error) {
	sec, err := scanSector(s.conn(ctx).QueryRow(ctx,
		`SELECT sector_id, name, created_at, created_by FROM sectors WHERE sector_id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "sector", id)
	}
	return sec, nil
}

func (s *Store) DeleteSector(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM sectors WHERE sector_id = $1`, id)
	return affected(tag, err, "sector", id)
}

func (s *Store) ListSectors(ctx context.Context) ([]model.Sector, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT sector_id, name, created_at, created_by FROM sectors ORDER BY name, sector_id`)
	return collect(rows, err, scanSector)
}

func (s *Store) InsertInsurancePlan(ctx context.Context, p *model.InsurancePlan) error {
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO insurance_plans (name, created_by) VALUES ($1, $2) RETURNING insurer_id, created_at`,
		p.Name, p.CreatedBy).Scan(&p.ID, &p.CreatedAt)
	return mapErr(err, "insurance plan", p.Name)
}

func scanInsurer(row pgx.Row) (*model.InsurancePlan, error) {
	var p model.InsurancePlan
	err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.CreatedBy)
	return &p, err
}

func (s *Store) GetInsurancePlan(ctx context.Context, id int64) (*model.InsurancePlan, error) {
	p, err := scanInsurer(s.conn(ctx).QueryRow(ctx,
		`SELECT insurer_id, name, created_at, created_by FROM insurance_plans WHERE insurer_id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "insurance plan", id)
	}
	return p, nil
}

func (s *Store) DeleteInsurancePlan(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM insurance_plans WHERE insurer_id = $1`, id)
	return affected(tag, err, "insurance plan", id)
}

func (s *Store) ListInsurancePlans(ctx context.Context) ([]model.InsurancePlan, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT insurer_id, name, created_at, created_by FROM insurance_plans ORDER BY name, insurer_id`)
	return collect(rows, err, scanInsurer)
}

// -- Patients --

const patientCols = `patient_id, name, hospital_id, sector_id, insurer_id, bed, age, record_number, diagnosis, discharged, created_at, created_by`

func scanPatient(row pgx.Row) (*model.Patient, error) {
	var p model.Patient
	err := row.Scan(&p.ID, &p.Name, &p.HospitalID, &p.SectorID, &p.InsurerID, &p.Bed, &p.Age,
		&p.RecordNumber, &p.Diagnosis, &p.Discharged, &p.CreatedAt, &p.CreatedBy)
	return &p, err
}

func (s *Store) InsertPatient(ctx context.Context, p *model.Patient) error {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (name, hospital_id, sector_id, insurer_id, bed, age, record_number, diagnosis, discharged, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING patient_id, created_at`,
		p.Name, p.HospitalID, p.SectorID, p.InsurerID, p.Bed, p.Age, p.RecordNumber, p.Diagnosis, p.Discharged, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)
	return mapErr(err, "patient", p.Name)
}

func (s *Store) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	p, err := scanPatient(s.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE patient_id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "patient", id)
	}
	return p, nil
}

func (s *Store) UpdatePatient(ctx context.Context, p *model.Patient) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE patients SET name = $2, hospital_id = $3, sector_id = $4, insurer_id = $5, bed = $6,
			age = $7, record_number = $8, diagnosis = $9, discharged = $10
		WHERE patient_id = $1`,
		p.ID, p.Name, p.HospitalID, p.SectorID, p.InsurerID, p.Bed, p.Age, p.RecordNumber, p.Diagnosis, p.Discharged)
	return affected(tag, err, "patient", p.ID)
}

func (s *Store) DeletePatient(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE patient_id = $1`, id)
	return affected(tag, err, "patient", id)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) SearchPatients(ctx context.Context, f registry.PatientFilter) ([]model.Patient, error) {
	ds := dialect.From("patients").Select(goqu.L(patientCols)).Order(goqu.I("name").Asc(), goqu.I("patient_id").Asc())
	if !f.IncludeDischarged {
		ds = ds.Where(goqu.C("discharged").IsFalse())
	}
	if f.HospitalID != nil {
		ds = ds.Where(goqu.C("hospital_id").Eq(*f.HospitalID))
	}
	if f.Query != "" {
		ds = ds.Where(goqu.C("name").ILike("%" + likeEscaper.Replace(f.Query) + "%"))
	}
	query, args, err := build(ds)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	return collect(rows, err, scanPatient)
}

// -- Procedures --

const procedureCols = `procedure_id, code, name, kind, active, created_at, created_by`

func scanProcedure(row pgx.Row) (*model.Procedure, error) {
	var p model.Procedure
	var kind string
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &kind, &p.Active, &p.CreatedAt, &p.CreatedBy); err != nil {
		return nil, err
	}
	p.Kind = model.ProcedureKind(kind)
	return &p, nil
}

func (s *Store) InsertProcedure(ctx context.Context, p *model.Procedure) error {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO procedures (code, name, kind, active, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING procedure_id, created_at`,
		p.Code, p.Name, string(p.Kind), p.Active, p.CreatedBy).Scan(&p.ID, &p.CreatedAt)
	return mapErr(err, "procedure", p.Name)
}

func (s *Store) GetProcedure(ctx context.Context, id int64) (*model.Procedure, error) {
	p, err := scanProcedure(s.conn(ctx).QueryRow(ctx, `SELECT `+procedureCols+` FROM procedures WHERE procedure_id = $1`, id))
	return p, mapErr(err, "procedure", id)
}

func (s *Store) FindProcedureByCode(ctx context.Context, code string) (*model.Procedure, error) {
	p, err := scanProcedure(s.conn(ctx).QueryRow(ctx, `SELECT `+procedureCols+` FROM procedures WHERE code = $1`, code))
	return p, mapErr(err, "procedure", code)
}

func (s *Store) SetProcedureActive(ctx context.Context, id int64, active bool) error {
	tag, err := s.conn(ctx).Exec(ctx, `UPDATE procedures SET active = $2 WHERE procedure_id = $1`, id, active)
	return affected(tag, err, "procedure", id)
}

func (s *Store) ListProcedures(ctx context.Context, activeOnly bool) ([]model.Procedure, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+procedureCols+` FROM procedures WHERE active OR NOT $1 ORDER BY name, procedure_id`, activeOnly)
	return collect(rows, err, scanProcedure)
}
