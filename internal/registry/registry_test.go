package registry_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/memstore"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/production"
	"github.com/gyeh/hdprod/internal/registry"
	"github.com/gyeh/hdprod/internal/tariff"
)

const actor = model.Actor("nurse")

func newRegistry(t *testing.T) (*memstore.Store, *registry.Service) {
	t.Helper()
	store := memstore.New()
	return store, registry.NewService(store, zerolog.Nop())
}

func TestCreateHospital(t *testing.T) {
	_, reg := newRegistry(t)
	ctx := context.Background()

	h, err := reg.CreateHospital(ctx, actor, "  Santa   Casa ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Santa Casa", h.Name)
	assert.True(t, model.DefaultHDFCFee.Equal(h.Rates.HDFCFee))
	require.NotNil(t, h.CreatedBy)
	assert.Equal(t, "nurse", *h.CreatedBy)

	for _, name := range []string{"", "   ", strings.Repeat("x", 21)} {
		_, err := reg.CreateHospital(ctx, actor, name, nil)
		var verr *apperr.ValidationError
		require.ErrorAs(t, err, &verr, "name %q", name)
		assert.Equal(t, "name", verr.Field)
	}

	bad := model.DefaultFlatRates()
	bad.CatheterFee = decimal.NewFromInt(-5)
	_, err = reg.CreateHospital(ctx, actor, "Outro", &bad)
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "catheter_fee", verr.Field)
}

func TestUpdateHospitalRates(t *testing.T) {
	store, reg := newRegistry(t)
	ctx := context.Background()
	h, err := reg.CreateHospital(ctx, actor, "Santa Casa", nil)
	require.NoError(t, err)

	rates := h.Rates
	rates.VisitFee = decimal.RequireFromString("82.50")
	_, err = reg.UpdateHospitalRates(ctx, actor, h.ID, rates)
	require.NoError(t, err)
	got, err := store.GetHospital(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("82.50").Equal(got.Rates.VisitFee))

	_, err = reg.UpdateHospitalRates(ctx, actor, 404, rates)
	assert.True(t, apperr.IsNotFound(err))
}

func TestPatientReferencesAreChecked(t *testing.T) {
	_, reg := newRegistry(t)
	ctx := context.Background()
	missing := int64(77)
	age := -1

	tests := []struct {
		name string
		in   registry.PatientInput
	}{
		{"unknown hospital", registry.PatientInput{Name: "Ana", HospitalID: &missing}},
		{"unknown sector", registry.PatientInput{Name: "Ana", SectorID: &missing}},
		{"unknown insurer", registry.PatientInput{Name: "Ana", InsurerID: &missing}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.AdmitPatient(ctx, actor, tt.in)
			assert.True(t, apperr.IsNotFound(err), "got %v", err)
		})
	}

	_, err := reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Ana", Age: &age})
	assert.True(t, apperr.IsValidation(err))
	_, err = reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Ana", Diagnosis: strings.Repeat("d", 401)})
	assert.True(t, apperr.IsValidation(err))
}

func TestUpdatePatientKeepsCreator(t *testing.T) {
	_, reg := newRegistry(t)
	ctx := context.Background()
	p, err := reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Ana"})
	require.NoError(t, err)

	bed := "12B"
	updated, err := reg.UpdatePatient(ctx, "doctor", p.ID, registry.PatientInput{Name: "Ana Souza", Bed: &bed})
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", updated.Name)
	require.NotNil(t, updated.CreatedBy)
	assert.Equal(t, "nurse", *updated.CreatedBy)

	discharged, err := reg.SetDischarged(ctx, actor, p.ID, true)
	require.NoError(t, err)
	assert.True(t, discharged.Discharged)
	require.NotNil(t, discharged.Bed)
	assert.Equal(t, "12B", *discharged.Bed)
}

func TestSearchPatients(t *testing.T) {
	_, reg := newRegistry(t)
	ctx := context.Background()
	h, err := reg.CreateHospital(ctx, actor, "Santa Casa", nil)
	require.NoError(t, err)
	_, err = reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Maria Silva", HospitalID: &h.ID})
	require.NoError(t, err)
	mario, err := reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Mario Souza"})
	require.NoError(t, err)
	_, err = reg.SetDischarged(ctx, actor, mario.ID, true)
	require.NoError(t, err)

	found, err := reg.SearchPatients(ctx, registry.PatientFilter{Query: "  MARI "})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Maria Silva", found[0].Name)

	found, err = reg.SearchPatients(ctx, registry.PatientFilter{Query: "mari", IncludeDischarged: true})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = reg.SearchPatients(ctx, registry.PatientFilter{HospitalID: &h.ID, IncludeDischarged: true})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestProcedures(t *testing.T) {
	_, reg := newRegistry(t)
	ctx := context.Background()
	code := " 03.05-01 "

	p, err := reg.CreateProcedure(ctx, actor, "Hemodiálise", model.KindBoolean, &code)
	require.NoError(t, err)
	require.NotNil(t, p.Code)
	assert.Equal(t, "030501", *p.Code)
	assert.True(t, p.Active)

	_, err = reg.CreateProcedure(ctx, actor, "Outra", model.KindCountable, &code)
	var cerr *apperr.ConflictError
	require.ErrorAs(t, err, &cerr)

	_, err = reg.CreateProcedure(ctx, actor, "Sem tipo", model.ProcedureKind("weekly"), nil)
	assert.True(t, apperr.IsValidation(err))

	// Procedures without a code do not collide.
	_, err = reg.CreateProcedure(ctx, actor, "Avulso 1", model.KindCountable, nil)
	require.NoError(t, err)
	_, err = reg.CreateProcedure(ctx, actor, "Avulso 2", model.KindCountable, nil)
	require.NoError(t, err)

	same, err := reg.EnsureProcedure(ctx, actor, "030501", "ignored", model.KindBoolean)
	require.NoError(t, err)
	assert.Equal(t, p.ID, same.ID)
	_, err = reg.EnsureProcedure(ctx, actor, "030501", "ignored", model.KindCountable)
	require.ErrorAs(t, err, &cerr)
	_, err = reg.EnsureProcedure(ctx, actor, "..", "blank", model.KindCountable)
	assert.True(t, apperr.IsValidation(err))

	require.NoError(t, reg.DeactivateProcedure(ctx, actor, p.ID))
	active, err := reg.Procedures(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	all, err := reg.Procedures(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeletesNullReferencesAndCascade(t *testing.T) {
	store, reg := newRegistry(t)
	ctx := context.Background()
	log := zerolog.Nop()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	h, err := reg.CreateHospital(ctx, actor, "Santa Casa", nil)
	require.NoError(t, err)
	sec, err := reg.CreateSector(ctx, actor, "UTI")
	require.NoError(t, err)
	ins, err := reg.CreateInsurancePlan(ctx, actor, "Plan X")
	require.NoError(t, err)
	p, err := reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Ana", HospitalID: &h.ID, SectorID: &sec.ID, InsurerID: &ins.ID})
	require.NoError(t, err)
	proc, err := reg.CreateProcedure(ctx, actor, "Sessão", model.KindCountable, nil)
	require.NoError(t, err)
	_, err = tariff.NewCatalog(store, log).AddEntry(ctx, actor, tariff.NewEntry{
		ProcedureID: proc.ID, HospitalID: h.ID, UnitPrice: decimal.NewFromInt(10), ValidFrom: day,
	})
	require.NoError(t, err)
	prod := production.NewService(store, tariff.NewResolver(store, log), model.FixedClock{T: day}, log)
	rec, _, err := prod.EnterDay(ctx, actor, p.ID, day, []production.DayEntry{{ProcedureID: proc.ID, Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, reg.DeleteSector(ctx, actor, sec.ID))
	require.NoError(t, reg.DeleteInsurancePlan(ctx, actor, ins.ID))
	require.NoError(t, reg.DeleteHospital(ctx, actor, h.ID))

	got, err := reg.Patient(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.HospitalID)
	assert.Nil(t, got.SectorID)
	assert.Nil(t, got.InsurerID)
	entries, err := store.TariffsFor(ctx, proc.ID, h.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Frozen prices survive the tariff deletion.
	kept, _, err := prod.Record(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(kept.Total))

	require.NoError(t, reg.DeletePatient(ctx, actor, p.ID))
	_, err = store.GetRecord(ctx, rec.ID)
	assert.True(t, apperr.IsNotFound(err))
	err = reg.DeletePatient(ctx, actor, p.ID)
	assert.True(t, apperr.IsNotFound(err))
}
