package db

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	embedsql "github.com/gyeh/hdprod/internal/sql"
)

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name        TEXT        PRIMARY KEY,
    checksum    TEXT        NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migration is one embedded migration file and its ledger state.
type Migration struct {
	Name      string
	Checksum  string
	AppliedAt *time.Time
}

// ErrMigrationChanged is returned when an applied migration's file no longer
// matches the checksum recorded for it.
var ErrMigrationChanged = errors.New("applied migration was modified")

func embeddedMigrations() ([]Migration, map[string][]byte, error) {
	entries, err := fs.ReadDir(embedsql.Migrations, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var out []Migration
	bodies := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := fs.ReadFile(embedsql.Migrations, "migrations/"+name)
		if err != nil {
			return nil, nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		bodies[name] = data
		out = append(out, Migration{Name: name, Checksum: fmt.Sprintf("%x", sha256.Sum256(data))})
	}
	return out, bodies, nil
}

func appliedMigrations(ctx context.Context, q interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}) (map[string]Migration, error) {
	rows, err := q.Query(ctx, `SELECT name, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Migration, error) {
		var m Migration
		var at time.Time
		if err := row.Scan(&m.Name, &m.Checksum, &at); err != nil {
			return m, err
		}
		m.AppliedAt = &at
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan schema_migrations: %w", err)
	}
	out := make(map[string]Migration, len(applied))
	for _, m := range applied {
		out[m.Name] = m
	}
	return out, nil
}

// ApplyMigrations runs the embedded SQL migrations that schema_migrations
// does not list yet, in filename order, each in its own transaction.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	if _, err := pool.Exec(ctx, ledgerDDL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	files, bodies, err := embeddedMigrations()
	if err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	ran := 0
	for _, m := range files {
		if prev, ok := applied[m.Name]; ok {
			if prev.Checksum != m.Checksum {
				return fmt.Errorf("%s: %w", m.Name, ErrMigrationChanged)
			}
			continue
		}

		log.Info().Str("migration", m.Name).Msg("applying migration")
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(bodies[m.Name])); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)`,
				m.Name, m.Checksum)
			return err
		})
		if err != nil {
			return fmt.Errorf("execute migration %s: %w", m.Name, err)
		}
		ran++
	}

	log.Info().Int("applied", ran).Int("total", len(files)).Msg("migrations up to date")
	return nil
}

// MigrationStatus lists every embedded migration with its applied time, nil
// when pending.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) ([]Migration, error) {
	if _, err := pool.Exec(ctx, ledgerDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	files, _, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}
	for i := range files {
		if prev, ok := applied[files[i].Name]; ok {
			files[i].AppliedAt = prev.AppliedAt
		}
	}
	return files, nil
}
