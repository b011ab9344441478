package ingest_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	goparquet "github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/config"
	"github.com/gyeh/hdprod/internal/db"
	"github.com/gyeh/hdprod/internal/ingest"
	"github.com/gyeh/hdprod/internal/legacy"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/production"
	"github.com/gyeh/hdprod/internal/registry"
	"github.com/gyeh/hdprod/internal/tariff"
)

const (
	testPort     = 15432
	testDB       = "hdprodtest"
	testUser     = "postgres"
	testPassword = "postgres"
)

var testDSN string

func TestMain(m *testing.M) {
	if os.Getenv("HDPROD_SKIP_PG") != "" {
		fmt.Fprintln(os.Stderr, "SKIP: HDPROD_SKIP_PG set")
		os.Exit(0)
	}

	testDSN = fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDB)

	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(uint32(testPort)).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			StartTimeout(30 * time.Second),
	)

	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "SKIP: embedded postgres unavailable: %v\n", err)
		os.Exit(0)
	}

	code := m.Run()

	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}

	os.Exit(code)
}

// setupDB recreates the schemas and applies migrations.
func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	for _, stmt := range []string{
		"DROP SCHEMA IF EXISTS ingest CASCADE",
		"DROP SCHEMA IF EXISTS public CASCADE",
		"CREATE SCHEMA public",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}

	if err := db.ApplyMigrations(ctx, pool, zerolog.Nop()); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}

	t.Cleanup(func() { pool.Close() })
	return pool
}

func writeParquet[T any](t *testing.T, name string, rows []T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	w := goparquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }

type services struct {
	store   *db.Store
	reg     *registry.Service
	catalog *tariff.Catalog
	prod    *production.Service
}

func newServices(pool *pgxpool.Pool) *services {
	log := zerolog.Nop()
	store := db.NewStore(pool, log)
	return &services{
		store:   store,
		reg:     registry.NewService(store, log),
		catalog: tariff.NewCatalog(store, log),
		prod:    production.NewService(store, tariff.NewResolver(store, log), model.SystemClock{}, log),
	}
}

type pairRecorder struct {
	pairs map[[2]int64]bool
}

func (r *pairRecorder) Invalidate(_ context.Context, procedureID, hospitalID int64) error {
	r.pairs[[2]int64{procedureID, hospitalID}] = true
	return nil
}

func TestTariffImport(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	s := newServices(pool)
	actor := model.Actor("importer")

	h, err := s.reg.CreateHospital(ctx, actor, "Santa Casa", nil)
	if err != nil {
		t.Fatalf("create hospital: %v", err)
	}
	plan, err := s.reg.CreateInsurancePlan(ctx, actor, "Unimed")
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	code := "HD-01"
	proc, err := s.reg.CreateProcedure(ctx, actor, "Hemodiálise", model.KindBoolean, &code)
	if err != nil {
		t.Fatalf("create procedure: %v", err)
	}

	path := writeParquet(t, "tariffs.parquet", []model.TariffRow{
		{ProcedureCode: "hd01", HospitalName: "santa  casa", UnitPrice: 100, ValidFrom: "2024-01-01"},
		{ProcedureCode: "HD01", HospitalName: "Santa Casa", InsurerName: strPtr("UNIMED"), UnitPrice: 150, ValidFrom: "01/03/2024"},
		{ProcedureCode: "HD01", HospitalName: "Santa Casa", UnitPrice: 101, ValidFrom: "2024-01-01"}, // same scope, later row
		{ProcedureCode: "XX99", HospitalName: "Santa Casa", UnitPrice: 10, ValidFrom: "2024-01-01"},
		{ProcedureCode: "HD01", HospitalName: "Nowhere", UnitPrice: 10, ValidFrom: "2024-01-01"},
		{ProcedureCode: "HD01", HospitalName: "Santa Casa", UnitPrice: 10, ValidFrom: "not a date"},
	})

	inv := &pairRecorder{pairs: map[[2]int64]bool{}}
	cfg := config.Default()
	cfg.FilePath = path
	cfg.Actor = string(actor)

	summary, err := ingest.RunTariffs(ctx, pool, zerolog.Nop(), &cfg, inv)
	if err != nil {
		t.Fatalf("run tariffs: %v", err)
	}
	if summary.RowsRead != 6 || summary.RowsStaged != 5 {
		t.Errorf("read/staged = %d/%d, want 6/5", summary.RowsRead, summary.RowsStaged)
	}
	if summary.RowsInserted != 2 {
		t.Errorf("inserted = %d, want 2", summary.RowsInserted)
	}
	if summary.RowsRejected != 3 {
		t.Errorf("rejected = %d, want 3", summary.RowsRejected)
	}
	if summary.RowsSkipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.RowsSkipped)
	}
	if !inv.pairs[[2]int64{proc.ID, h.ID}] || len(inv.pairs) != 1 {
		t.Errorf("invalidated pairs = %v", inv.pairs)
	}

	entries, err := s.catalog.ListEntries(ctx, proc.ID, h.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if !entries[0].UnitPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("default price = %s, want 100 (first row wins)", entries[0].UnitPrice)
	}
	if entries[1].InsurerID == nil || *entries[1].InsurerID != plan.ID {
		t.Errorf("second entry insurer = %v, want %d", entries[1].InsurerID, plan.ID)
	}
	if entries[0].CreatedBy == nil || *entries[0].CreatedBy != "importer" {
		t.Errorf("created_by = %v", entries[0].CreatedBy)
	}

	var staged int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM ingest.stage_tariff_rows").Scan(&staged); err != nil {
		t.Fatalf("count staging: %v", err)
	}
	if staged != 0 {
		t.Errorf("staging rows left = %d, want 0", staged)
	}

	// Same file again is a no-op.
	again, err := ingest.RunTariffs(ctx, pool, zerolog.Nop(), &cfg, inv)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if !again.AlreadyLoaded || again.ImportID != summary.ImportID {
		t.Errorf("rerun = %+v, want already loaded import %d", again, summary.ImportID)
	}

	// Forced, every resolvable row collides with what is already there.
	cfg.Force = true
	cfg.KeepStaging = true
	forced, err := ingest.RunTariffs(ctx, pool, zerolog.Nop(), &cfg, nil)
	if err != nil {
		t.Fatalf("forced rerun: %v", err)
	}
	if forced.RowsInserted != 0 || forced.RowsSkipped != 3 {
		t.Errorf("forced inserted/skipped = %d/%d, want 0/3", forced.RowsInserted, forced.RowsSkipped)
	}
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM ingest.stage_tariff_rows").Scan(&staged); err != nil {
		t.Fatalf("count staging: %v", err)
	}
	if staged != 5 {
		t.Errorf("kept staging rows = %d, want 5", staged)
	}

	var status string
	if err := pool.QueryRow(ctx, "SELECT status FROM ingest.imports WHERE import_id = $1", summary.ImportID).Scan(&status); err != nil {
		t.Fatalf("import status: %v", err)
	}
	if status != ingest.StatusDone {
		t.Errorf("status = %q, want done", status)
	}
}

func TestTariffImportRejectsBadSchema(t *testing.T) {
	pool := setupDB(t)

	type wrong struct {
		Code string `parquet:"code"`
	}
	path := writeParquet(t, "wrong.parquet", []wrong{{Code: "x"}})

	cfg := config.Default()
	cfg.FilePath = path
	_, err := ingest.RunTariffs(context.Background(), pool, zerolog.Nop(), &cfg, nil)
	pe, ok := err.(*ingest.PipelineError)
	if !ok {
		t.Fatalf("err = %v, want PipelineError", err)
	}
	if pe.Phase != "preflight" {
		t.Errorf("phase = %q, want preflight", pe.Phase)
	}
}

func TestLegacyImport(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	s := newServices(pool)
	actor := model.Actor("importer")

	h, err := s.reg.CreateHospital(ctx, actor, "Hospital Norte", nil)
	if err != nil {
		t.Fatalf("create hospital: %v", err)
	}
	p, err := s.reg.AdmitPatient(ctx, actor, registry.PatientInput{Name: "Maria", HospitalID: &h.ID})
	if err != nil {
		t.Fatalf("admit patient: %v", err)
	}

	path := writeParquet(t, "legacy.parquet", []model.LegacyProductionRow{
		{PatientID: p.ID, HospitalID: h.ID, Day: "2023-05-01", Visit: true, Hemodialysis: true, CatheterCount: 1, DayTotal: floatPtr(345)},
		{PatientID: p.ID, HospitalID: h.ID, Day: "2023-05-02", HDFC: true, HDFCFee: floatPtr(450), DayTotal: floatPtr(450)},
		{PatientID: 999999, HospitalID: h.ID, Day: "2023-05-02", Visit: true},
		{PatientID: p.ID, HospitalID: h.ID, Day: "garbage", Visit: true},
	})

	migrator := legacy.NewMigrator(s.reg, s.catalog, s.prod, legacy.DefaultNames(), zerolog.Nop())
	rates := func(ctx context.Context, id int64) (model.FlatRates, bool) {
		hosp, err := s.store.GetHospital(ctx, id)
		if err != nil {
			return model.FlatRates{}, false
		}
		return hosp.Rates, true
	}

	cfg := config.Default()
	cfg.FilePath = path
	cfg.Actor = string(actor)
	summary, err := ingest.RunLegacy(ctx, pool, zerolog.Nop(), &cfg, migrator, rates)
	if err != nil {
		t.Fatalf("run legacy: %v", err)
	}
	if summary.RowsRead != 4 || summary.RowsInserted != 2 || summary.RowsRejected != 2 || summary.Mismatches != 0 {
		t.Errorf("summary = %+v", summary)
	}

	rec, err := s.store.FindRecord(ctx, p.ID, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("find record: %v", err)
	}
	if !rec.Total.Equal(decimal.NewFromInt(345)) {
		t.Errorf("day 1 total = %s, want 345", rec.Total)
	}
	rec, err = s.store.FindRecord(ctx, p.ID, time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("find record: %v", err)
	}
	if !rec.Total.Equal(decimal.NewFromInt(450)) {
		t.Errorf("day 2 total = %s, want 450", rec.Total)
	}
}
