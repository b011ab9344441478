// Package tariff keeps the time-versioned price catalog and resolves the
// price of a procedure for a hospital, insurer and day.
package tariff

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/model"
)

// Query identifies the price being asked for. A nil InsurerID asks for the
// hospital default.
type Query struct {
	ProcedureID int64
	HospitalID  int64
	InsurerID   *int64
	Day         time.Time
}

// Resolution is the outcome of a lookup. Entry is nil when no tariff covers
// the day, in which case Price is zero.
type Resolution struct {
	Price decimal.Decimal
	Entry *model.TariffEntry
}

// Found reports whether a tariff entry matched.
func (r Resolution) Found() bool {
	return r.Entry != nil
}

// Source lists every tariff entry of a (procedure, hospital) pair, all
// insurers and windows included.
type Source interface {
	TariffsFor(ctx context.Context, procedureID, hospitalID int64) ([]model.TariffEntry, error)
}

// Resolver picks the applicable tariff. It never mutates and is safe for
// concurrent use.
type Resolver struct {
	src Source
	log zerolog.Logger
}

func NewResolver(src Source, log zerolog.Logger) *Resolver {
	return &Resolver{src: src, log: log.With().Str("component", "tariff").Logger()}
}

// Resolve returns the price for q. A missing tariff is not an error: it
// yields a zero price and a warning. Errors come only from the source.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Resolution, error) {
	entries, err := r.src.TariffsFor(ctx, q.ProcedureID, q.HospitalID)
	if err != nil {
		return Resolution{}, fmt.Errorf("load tariffs for procedure %d hospital %d: %w", q.ProcedureID, q.HospitalID, err)
	}

	entry, ok := Select(entries, q)
	if !ok {
		ev := r.log.Warn().
			Int64("procedure_id", q.ProcedureID).
			Int64("hospital_id", q.HospitalID).
			Str("day", q.Day.Format(time.DateOnly))
		if q.InsurerID != nil {
			ev = ev.Int64("insurer_id", *q.InsurerID)
		}
		ev.Msg("no tariff covers day, pricing at zero")
		return Resolution{Price: decimal.Zero}, nil
	}
	return Resolution{Price: entry.UnitPrice, Entry: &entry}, nil
}

// Select applies the resolution rules to entries: an insurer-specific entry
// covering the day wins over a default one; within a scope the latest
// ValidFrom wins, and the highest ID breaks what the uniqueness constraint
// should already forbid.
func Select(entries []model.TariffEntry, q Query) (model.TariffEntry, bool) {
	if q.InsurerID != nil {
		if e, ok := latest(entries, q, q.InsurerID); ok {
			return e, true
		}
	}
	return latest(entries, q, nil)
}

func latest(entries []model.TariffEntry, q Query, insurerID *int64) (model.TariffEntry, bool) {
	var best model.TariffEntry
	found := false
	for _, e := range entries {
		if e.ProcedureID != q.ProcedureID || e.HospitalID != q.HospitalID {
			continue
		}
		if !e.SameInsurer(insurerID) || !e.Covers(q.Day) {
			continue
		}
		if !found || e.ValidFrom.After(best.ValidFrom) ||
			(e.ValidFrom.Equal(best.ValidFrom) && e.ID > best.ID) {
			best = e
			found = true
		}
	}
	return best, found
}
