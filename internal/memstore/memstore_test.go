package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/memstore"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/production"
)

func TestInTxRestoresOnError(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	h := &model.Hospital{Name: "Santa Casa"}
	require.NoError(t, s.InsertHospital(ctx, h))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context) error {
		h2 := *h
		h2.Name = "Renamed"
		if err := s.UpdateHospital(ctx, &h2); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return s.InTx(ctx, func(ctx context.Context) error {
			if err := s.InsertPatient(ctx, &model.Patient{Name: "Ana"}); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetHospital(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "Santa Casa", got.Name)
	d, err := s.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Patients)
}

func TestRecordAndItemUniqueness(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	p := &model.Patient{Name: "Ana"}
	require.NoError(t, s.InsertPatient(ctx, p))
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	rec := &model.ProductionRecord{PatientID: p.ID, Day: day}
	require.NoError(t, s.InsertRecord(ctx, rec))
	err := s.InsertRecord(ctx, &model.ProductionRecord{PatientID: p.ID, Day: day})
	assert.ErrorIs(t, err, apperr.ErrUniqueViolation)

	proc := &model.Procedure{Name: "Sessão", Kind: model.KindCountable, Active: true}
	require.NoError(t, s.InsertProcedure(ctx, proc))
	li := &model.LineItem{RecordID: rec.ID, ProcedureID: proc.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(10), PriceSource: model.PriceManual}
	require.NoError(t, s.InsertItem(ctx, li))
	err = s.InsertItem(ctx, &model.LineItem{RecordID: rec.ID, ProcedureID: proc.ID, Quantity: 2})
	assert.ErrorIs(t, err, apperr.ErrUniqueViolation)

	found, err := s.FindRecord(ctx, p.ID, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
}

func TestRecordIDsFilter(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	h := &model.Hospital{Name: "Santa Casa"}
	require.NoError(t, s.InsertHospital(ctx, h))
	inside := &model.Patient{Name: "Maria", HospitalID: &h.ID}
	outside := &model.Patient{Name: "Ana"}
	require.NoError(t, s.InsertPatient(ctx, inside))
	require.NoError(t, s.InsertPatient(ctx, outside))

	var want []int64
	for d := 1; d <= 3; d++ {
		day := time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
		r := &model.ProductionRecord{PatientID: inside.ID, Day: day}
		require.NoError(t, s.InsertRecord(ctx, r))
		if d >= 2 {
			want = append(want, r.ID)
		}
		require.NoError(t, s.InsertRecord(ctx, &model.ProductionRecord{PatientID: outside.ID, Day: day}))
	}

	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	got, err := s.RecordIDs(ctx, production.RecordFilter{HospitalID: &h.ID, From: &from})
	require.NoError(t, err)
	assert.ElementsMatch(t, want, got)
}
