// mkfixture writes small demo Parquet files for the tariff and legacy imports.
// Rows are drawn from a seeded generator so the same flags give the same file.
// Usage: go run ./cmd/mkfixture --kind tariff --out testdata/tariffs.parquet --hospitals 3
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	goparquet "github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/legacy"
	"github.com/gyeh/hdprod/internal/model"
)

func main() {
	kind := flag.String("kind", "tariff", "fixture kind: tariff or legacy")
	out := flag.String("out", "", "output parquet (default testdata/<kind>.parquet)")
	hospitals := flag.Int("hospitals", 3, "number of hospitals")
	patients := flag.Int("patients", 20, "patients per hospital (legacy)")
	days := flag.Int("days", 30, "days of production (legacy)")
	start := flag.String("start", "2024-01-01", "first day")
	seed := flag.Uint64("seed", 1, "generator seed")
	flag.Parse()

	from, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad --start: %v\n", err)
		os.Exit(1)
	}
	if *out == "" {
		*out = "testdata/" + *kind + ".parquet"
	}
	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	switch *kind {
	case "tariff":
		rows := tariffRows(rng, *hospitals, from)
		err = write(*out, rows)
		fmt.Printf("Wrote %d tariff rows to %s\n", len(rows), *out)
	case "legacy":
		rows := legacyRows(rng, *hospitals, *patients, *days, from)
		err = write(*out, rows)
		fmt.Printf("Wrote %d legacy rows to %s\n", len(rows), *out)
	default:
		err = fmt.Errorf("unknown kind %q", *kind)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func write[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := goparquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Close()
}

// price returns base scaled by up to ±20%, rounded to cents.
func price(rng *rand.Rand, base float64) float64 {
	v := base * (0.8 + 0.4*rng.Float64())
	return float64(int64(v*100+0.5)) / 100
}

// tariffRows gives every hospital a default price per legacy procedure, a
// raise halfway through the year and one insurer-specific price.
func tariffRows(rng *rand.Rand, hospitals int, from time.Time) []model.TariffRow {
	names := legacy.DefaultNames()
	base := model.DefaultFlatRates()
	insurer := "Unimed"
	mid := from.AddDate(0, 6, 0)
	closeDay := mid.AddDate(0, 0, -1).Format(time.DateOnly)

	var rows []model.TariffRow
	for h := 1; h <= hospitals; h++ {
		hospital := fmt.Sprintf("Hospital %d", h)
		for _, s := range legacy.Slots {
			p := price(rng, s.Fee(base).InexactFloat64())
			code := names.For(s).Code
			rows = append(rows,
				model.TariffRow{ProcedureCode: code, HospitalName: hospital, UnitPrice: p, ValidFrom: from.Format(time.DateOnly), ValidTo: &closeDay},
				model.TariffRow{ProcedureCode: code, HospitalName: hospital, UnitPrice: price(rng, p*1.1), ValidFrom: mid.Format(time.DateOnly)},
			)
			if s == legacy.SlotHemodialysis {
				rows = append(rows, model.TariffRow{
					ProcedureCode: code, HospitalName: hospital, InsurerName: &insurer,
					UnitPrice: price(rng, p*1.25), ValidFrom: from.Format(time.DateOnly),
				})
			}
		}
	}
	return rows
}

// legacyRows writes a flat-rate history where every hospital raises its
// hemodialysis fee once.
func legacyRows(rng *rand.Rand, hospitals, patients, days int, from time.Time) []model.LegacyProductionRow {
	base := model.DefaultFlatRates()
	var rows []model.LegacyProductionRow
	for h := 1; h <= hospitals; h++ {
		visit := base.VisitFee.InexactFloat64()
		hd := price(rng, base.HemodialysisFee.InexactFloat64())
		hdfc := base.HDFCFee.InexactFloat64()
		cat := base.CatheterFee.InexactFloat64()
		raiseOn := days / 2
		for d := 0; d < days; d++ {
			if d == raiseOn {
				hd = price(rng, hd*1.1)
			}
			day := from.AddDate(0, 0, d).Format(time.DateOnly)
			for p := 1; p <= patients; p++ {
				if rng.IntN(3) == 0 {
					continue
				}
				r := model.LegacyProductionRow{
					PatientID:     int64((h-1)*patients + p),
					HospitalID:    int64(h),
					Day:           day,
					Visit:         rng.IntN(4) == 0,
					Hemodialysis:  rng.IntN(2) == 0,
					HDFC:          rng.IntN(8) == 0,
					CatheterCount: int32(rng.IntN(3)),
					VisitFee:      &visit,
					HDFee:         &hd,
					HDFCFee:       &hdfc,
					CatheterFee:   &cat,
				}
				total := flatTotal(r)
				r.DayTotal = &total
				rows = append(rows, r)
			}
		}
	}
	return rows
}

func flatTotal(r model.LegacyProductionRow) float64 {
	flags := legacy.Flags{
		Visit:        r.Visit,
		Hemodialysis: r.Hemodialysis,
		HDFC:         r.HDFC,
		Catheters:    int(r.CatheterCount),
	}
	rates := model.FlatRates{
		VisitFee:        decimal.NewFromFloat(*r.VisitFee),
		HemodialysisFee: decimal.NewFromFloat(*r.HDFee),
		HDFCFee:         decimal.NewFromFloat(*r.HDFCFee),
		CatheterFee:     decimal.NewFromFloat(*r.CatheterFee),
	}
	return legacy.FlatTotal(flags, rates).InexactFloat64()
}
