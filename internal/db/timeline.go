package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/gyeh/hdprod/internal/model"
)

func (s *Store) InsertObservation(ctx context.Context, o *model.Observation) error {
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO observations (patient_id, description, created_by) VALUES ($1, $2, $3) RETURNING observation_id, created_at`,
		o.PatientID, o.Description, o.CreatedBy).Scan(&o.ID, &o.CreatedAt)
	return mapErr(err, "observation", o.PatientID)
}

func (s *Store) ListObservations(ctx context.Context, patientID int64) ([]model.Observation, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT observation_id, patient_id, description, created_at, created_by
		FROM observations WHERE patient_id = $1
		ORDER BY created_at DESC, observation_id DESC`, patientID)
	return collect(rows, err, func(row pgx.Row) (*model.Observation, error) {
		var o model.Observation
		err := row.Scan(&o.ID, &o.PatientID, &o.Description, &o.CreatedAt, &o.CreatedBy)
		return &o, err
	})
}

func scanConductDescription(row pgx.Row) (*model.ConductDescription, error) {
	var d model.ConductDescription
	err := row.Scan(&d.ID, &d.Description)
	return &d, err
}

func (s *Store) InsertConductDescription(ctx context.Context, d *model.ConductDescription) error {
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO conduct_descriptions (description) VALUES ($1) RETURNING description_id`, d.Description).Scan(&d.ID)
	return mapErr(err, "conduct description", d.Description)
}

func (s *Store) GetConductDescription(ctx context.Context, id int64) (*model.ConductDescription, error) {
	d, err := scanConductDescription(s.conn(ctx).QueryRow(ctx,
		`SELECT description_id, description FROM conduct_descriptions WHERE description_id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "conduct description", id)
	}
	return d, nil
}

func (s *Store) ListConductDescriptions(ctx context.Context) ([]model.ConductDescription, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT description_id, description FROM conduct_descriptions ORDER BY description`)
	return collect(rows, err, scanConductDescription)
}

func (s *Store) InsertConduct(ctx context.Context, c *model.Conduct) error {
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO conducts (patient_id, description_id, created_by) VALUES ($1, $2, $3) RETURNING conduct_id, created_at`,
		c.PatientID, c.DescriptionID, c.CreatedBy).Scan(&c.ID, &c.CreatedAt)
	return mapErr(err, "conduct", c.PatientID)
}

func (s *Store) ListConduct(ctx context.Context, patientID int64) ([]model.Conduct, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT c.conduct_id, c.patient_id, c.description_id, d.description, c.created_at, c.created_by
		FROM conducts c
		JOIN conduct_descriptions d ON d.description_id = c.description_id
		WHERE c.patient_id = $1
		ORDER BY c.created_at DESC, c.conduct_id DESC`, patientID)
	return collect(rows, err, func(row pgx.Row) (*model.Conduct, error) {
		var c model.Conduct
		err := row.Scan(&c.ID, &c.PatientID, &c.DescriptionID, &c.Description, &c.CreatedAt, &c.CreatedBy)
		return &c, err
	})
}

func scanAccessDescription(row pgx.Row) (*model.AccessDescription, error) {
	var d model.AccessDescription
	err := row.Scan(&d.ID, &d.Description)
	return &d, err
}

func (s *Store) InsertAccessDescription(ctx context.Context, d *model.AccessDescription) error {
	err := s.conn(ctx).QueryRow(ctx,
		`INSERT INTO access_descriptions (description) VALUES ($1) RETURNING description_id`, d.Description).Scan(&d.ID)
	return mapErr(err, "access description", d.Description)
}

func (s *Store) GetAccessDescription(ctx context.Context, id int64) (*model.AccessDescription, error) {
	d, err := scanAccessDescription(s.conn(ctx).QueryRow(ctx,
		`SELECT description_id, description FROM access_descriptions WHERE description_id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "access description", id)
	}
	return d, nil
}

func (s *Store) ListAccessDescriptions(ctx context.Context) ([]model.AccessDescription, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT description_id, description FROM access_descriptions ORDER BY description`)
	return collect(rows, err, scanAccessDescription)
}

const accessCols = `access_id, patient_id, description_id, implanted_on, days_since_implantation, created_at, created_by`

func scanAccess(row pgx.Row) (*model.VascularAccess, error) {
	var a model.VascularAccess
	err := row.Scan(&a.ID, &a.PatientID, &a.DescriptionID, &a.ImplantedOn, &a.DaysSinceImplantation, &a.CreatedAt, &a.CreatedBy)
	return &a, err
}

func (s *Store) InsertAccess(ctx context.Context, a *model.VascularAccess) error {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO vascular_accesses (patient_id, description_id, implanted_on, days_since_implantation, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING access_id, created_at`,
		a.PatientID, a.DescriptionID, a.ImplantedOn, a.DaysSinceImplantation, a.CreatedBy).Scan(&a.ID, &a.CreatedAt)
	return mapErr(err, "vascular access", a.PatientID)
}

func (s *Store) UpdateAccess(ctx context.Context, a *model.VascularAccess) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE vascular_accesses SET description_id = $2, implanted_on = $3, days_since_implantation = $4
		WHERE access_id = $1`,
		a.ID, a.DescriptionID, a.ImplantedOn, a.DaysSinceImplantation)
	return affected(tag, err, "vascular access", a.ID)
}

func (s *Store) GetAccess(ctx context.Context, id int64) (*model.VascularAccess, error) {
	a, err := scanAccess(s.conn(ctx).QueryRow(ctx, `SELECT `+accessCols+` FROM vascular_accesses WHERE access_id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "vascular access", id)
	}
	return a, nil
}

func (s *Store) ListAccesses(ctx context.Context, patientID int64) ([]model.VascularAccess, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT `+accessCols+` FROM vascular_accesses WHERE patient_id = $1
		ORDER BY created_at DESC, access_id DESC`, patientID)
	return collect(rows, err, scanAccess)
}
