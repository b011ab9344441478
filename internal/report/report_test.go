package report_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/memstore"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/production"
	"github.com/gyeh/hdprod/internal/registry"
	"github.com/gyeh/hdprod/internal/report"
	"github.com/gyeh/hdprod/internal/tariff"
)

const actor = model.Actor("tester")

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	svc      *report.Service
	hospital *model.Hospital
}

// newFixture records three days of production: Maria at Santa Casa on the
// 1st and 2nd, Ana (no hospital) on the 2nd.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	store := memstore.New()
	reg := registry.NewService(store, log)
	catalog := tariff.NewCatalog(store, log)
	prod := production.NewService(store, tariff.NewResolver(store, log), model.FixedClock{T: day(3)}, log)

	h, err := reg.CreateHospital(ctx, actor, "Santa Casa", nil)
	require.NoError(t, err)
	maria, err := reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Maria Silva", HospitalID: &h.ID})
	require.NoError(t, err)
	ana, err := reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Ana"})
	require.NoError(t, err)
	code := "HD"
	hd, err := reg.CreateProcedure(ctx, actor, "Hemodiálise", model.KindBoolean, &code)
	require.NoError(t, err)
	cat, err := reg.CreateProcedure(ctx, actor, "Cateter", model.KindCountable, nil)
	require.NoError(t, err)
	for _, e := range []tariff.NewEntry{
		{ProcedureID: hd.ID, HospitalID: h.ID, UnitPrice: decimal.RequireFromString("120.50"), ValidFrom: day(1)},
		{ProcedureID: cat.ID, HospitalID: h.ID, UnitPrice: decimal.NewFromInt(150), ValidFrom: day(1)},
	} {
		_, err := catalog.AddEntry(ctx, actor, e)
		require.NoError(t, err)
	}

	enter := func(p *model.Patient, d time.Time, entries ...production.DayEntry) {
		_, _, err := prod.EnterDay(ctx, actor, p.ID, d, entries)
		require.NoError(t, err)
	}
	manual := decimal.NewFromInt(99)
	enter(maria, day(1), production.DayEntry{ProcedureID: hd.ID, Quantity: 1}, production.DayEntry{ProcedureID: cat.ID, Quantity: 2})
	enter(maria, day(2), production.DayEntry{ProcedureID: hd.ID, Quantity: 1})
	enter(ana, day(2), production.DayEntry{ProcedureID: cat.ID, Quantity: 1, ExplicitPrice: &manual})

	return &fixture{svc: report.NewService(store, log), hospital: h}
}

func ptr(t time.Time) *time.Time { return &t }

func TestSummary(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, d.Hospitals)
	assert.Equal(t, 2, d.Patients)
	assert.True(t, decimal.RequireFromString("640.00").Equal(d.ProductionTotal), "got %s", d.ProductionTotal)
}

func TestDaily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	days, err := f.svc.Daily(ctx, report.Period{})
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, day(1), days[0].Day)
	assert.True(t, decimal.RequireFromString("420.50").Equal(days[0].Total))
	assert.Equal(t, "Santa Casa", days[1].HospitalName)
	assert.Equal(t, int64(0), days[2].HospitalID, "patients without a hospital sort last")
	assert.True(t, decimal.NewFromInt(99).Equal(days[2].Total))

	days, err = f.svc.Daily(ctx, report.Period{From: ptr(day(2)), HospitalID: &f.hospital.ID})
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 1, days[0].Patients)

	_, err = f.svc.Daily(ctx, report.Period{From: ptr(day(2)), To: ptr(day(1))})
	assert.True(t, apperr.IsValidation(err))
}

func TestRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	recs, err := f.svc.Recent(ctx, report.Period{}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, day(2), recs[0].Day)
	assert.Equal(t, day(1), recs[2].Day)

	recs, err = f.svc.Recent(ctx, report.Period{}, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	n, err := f.svc.Export(context.Background(), &buf, report.FormatXLSX, report.Period{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	x, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer x.Close()

	rows, err := x.GetRows("Production")
	require.NoError(t, err)
	require.Len(t, rows, 6, "header, four lines, total")
	assert.Equal(t, "Day", rows[0][0])
	assert.Equal(t, "Price Source", rows[0][9])
	assert.Equal(t, "2024-03-01", rows[1][0])
	assert.Equal(t, "Santa Casa", rows[1][1])

	label, err := x.GetCellValue("Production", "H6")
	require.NoError(t, err)
	assert.Equal(t, "Total", label)
	total, err := x.GetCellValue("Production", "I6", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "640", total)
}

func TestExportParquet(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	n, err := f.svc.Export(context.Background(), &buf, report.FormatParquet, report.Period{To: ptr(day(1))})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r := parquet.NewGenericReader[report.ExportRow](bytes.NewReader(buf.Bytes()))
	defer r.Close()
	rows := make([]report.ExportRow, 10)
	got, err := r.Read(rows)
	if err != nil {
		require.ErrorIs(t, err, io.EOF)
	}
	require.Equal(t, 2, got)

	byName := map[string]report.ExportRow{}
	for _, row := range rows[:got] {
		byName[row.ProcedureName] = row
	}
	cat := byName["Cateter"]
	assert.Equal(t, int32(2), cat.Quantity)
	assert.Equal(t, int64(15000), cat.UnitPriceCents)
	assert.Equal(t, int64(30000), cat.AmountCents)
	assert.Nil(t, cat.ProcedureCode)
	assert.Equal(t, "tariff", cat.PriceSource)

	hd := byName["Hemodiálise"]
	require.NotNil(t, hd.ProcedureCode)
	assert.Equal(t, "HD", *hd.ProcedureCode)
	require.NotNil(t, hd.HospitalName)
	assert.Equal(t, "2024-03-01", hd.Day)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Export(context.Background(), io.Discard, "csv", report.Period{})
	assert.True(t, apperr.IsValidation(err))
}
