package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
)

const tariffCols = `tariff_id, procedure_id, hospital_id, insurer_id, unit_price_cents, valid_from, valid_to, created_at, created_by`

func scanTariff(row pgx.Row) (*model.TariffEntry, error) {
	var e model.TariffEntry
	var cents int64
	if err := row.Scan(&e.ID, &e.ProcedureID, &e.HospitalID, &e.InsurerID, &cents,
		&e.ValidFrom, &e.ValidTo, &e.CreatedAt, &e.CreatedBy); err != nil {
		return nil, err
	}
	e.UnitPrice = normalize.CentsToDecimal(cents)
	return &e, nil
}

// TariffsFor returns every entry of a (procedure, hospital) pair.
func (s *Store) TariffsFor(ctx context.Context, procedureID, hospitalID int64) ([]model.TariffEntry, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT `+tariffCols+`
		FROM tariff_entries
		WHERE procedure_id = $1 AND hospital_id = $2
		ORDER BY tariff_id`, procedureID, hospitalID)
	return collect(rows, err, scanTariff)
}

func (s *Store) InsertTariff(ctx context.Context, e *model.TariffEntry) error {
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO tariff_entries (procedure_id, hospital_id, insurer_id, unit_price_cents, valid_from, valid_to, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING tariff_id, created_at`,
		e.ProcedureID, e.HospitalID, e.InsurerID, normalize.DecimalToCents(e.UnitPrice), e.ValidFrom, e.ValidTo, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt)
	return mapErr(err, "tariff", e.ProcedureID)
}

func (s *Store) GetTariff(ctx context.Context, id int64) (*model.TariffEntry, error) {
	e, err := scanTariff(s.conn(ctx).QueryRow(ctx, `SELECT `+tariffCols+` FROM tariff_entries WHERE tariff_id = $1`, id))
	return e, mapErr(err, "tariff", id)
}

func (s *Store) SetTariffEnd(ctx context.Context, id int64, end *time.Time) error {
	tag, err := s.conn(ctx).Exec(ctx, `UPDATE tariff_entries SET valid_to = $2 WHERE tariff_id = $1`, id, end)
	return affected(tag, err, "tariff", id)
}
