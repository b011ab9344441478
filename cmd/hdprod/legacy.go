package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/exitcode"
	"github.com/gyeh/hdprod/internal/ingest"
	"github.com/gyeh/hdprod/internal/legacy"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
	"github.com/gyeh/hdprod/internal/parquetread"
)

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Convert flat-rate production into line items",
}

var legacyPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run: derive the tariff plan and totals of a legacy file (no writes)",
	RunE:  runLegacyPlan,
}

var legacyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Migrate a legacy production Parquet file",
	RunE:  runLegacyImport,
}

func init() {
	legacyPlanCmd.Flags().StringVar(&cfg.FilePath, "file", "", "Path to Parquet file (required)")
	_ = legacyPlanCmd.MarkFlagRequired("file")

	f := legacyImportCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to Parquet file (required)")
	f.BoolVar(&cfg.Force, "force", false, "Re-import even if file SHA already exists")
	_ = legacyImportCmd.MarkFlagRequired("file")

	legacyCmd.AddCommand(legacyPlanCmd, legacyImportCmd)
	rootCmd.AddCommand(legacyCmd)
}

func runLegacyPlan(cmd *cobra.Command, args []string) error {
	log := newLogger()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	sha, err := normalize.FileHash(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash file")
		os.Exit(exitcode.ValidationError)
	}

	raw, err := parquetread.ReadAll[model.LegacyProductionRow](cfg.FilePath, model.RequiredLegacyColumns)
	if err != nil {
		log.Error().Err(err).Msg("failed to read parquet file")
		os.Exit(exitcode.ValidationError)
	}
	// Without a database every row falls back to the default rates for
	// fees the file leaves empty.
	rows, rowErrs := legacy.RowsFromParquet(raw, func(int64) (model.FlatRates, bool) {
		return model.FlatRates{}, false
	})
	for _, e := range rowErrs {
		log.Warn().Err(e).Msg("row rejected")
	}

	plan := legacy.BuildPlan(rows)
	total := decimal.Zero
	recordedMismatch := 0
	for _, r := range rows {
		t := r.Total()
		total = total.Add(t)
		if r.Recorded != nil && !r.Recorded.Equal(t) {
			recordedMismatch++
		}
	}

	names := cfg.Legacy
	fmt.Println("=== hdprod legacy plan ===")
	fmt.Printf("File:       %s\n", cfg.FilePath)
	fmt.Printf("SHA-256:    %s\n", sha)
	fmt.Printf("Total rows: %d (%d rejected)\n", len(raw), len(rowErrs))
	fmt.Printf("Flat total: %s\n", total.StringFixed(2))
	fmt.Printf("Recorded totals differing from flags: %d\n", recordedMismatch)
	fmt.Printf("Rate conflicts within a day: %d\n", plan.Conflicts)
	fmt.Println()
	fmt.Printf("Tariff entries to reconcile: %d\n", len(plan.Tariffs))
	for _, t := range plan.Tariffs {
		fmt.Printf("  hospital %-6d %-8s %10s  %s to %s\n",
			t.HospitalID, names.For(t.Slot).Code, t.UnitPrice.StringFixed(2),
			t.ValidFrom.Format(time.DateOnly), dayString(t.ValidTo))
	}
	return nil
}

func runLegacyImport(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	a := openApp(ctx, log)
	defer a.Close()

	m := legacy.NewMigrator(a.registry, a.catalog, a.prod, cfg.Legacy, log)
	rates := func(ctx context.Context, hospitalID int64) (model.FlatRates, bool) {
		h, err := a.store.GetHospital(ctx, hospitalID)
		if err != nil {
			return model.FlatRates{}, false
		}
		return h.Rates, true
	}

	summary, err := ingest.RunLegacy(ctx, a.pool, log, &cfg, m, rates)
	if err != nil {
		var pe *ingest.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("legacy import failed")
			os.Exit(exitCode(err))
		}
		fail(log, err, "legacy import failed")
	}

	if summary.AlreadyLoaded {
		fmt.Printf("File already imported (import %d); use --force to reload\n", summary.ImportID)
		return nil
	}
	fmt.Printf("Legacy import complete: %d rows read, %d days converted, %d rejected, %d total mismatches (%.1fs)\n",
		summary.RowsRead, summary.RowsInserted, summary.RowsRejected, summary.Mismatches, summary.DurationTotal.Seconds())
	if summary.RowsRejected > 0 || summary.Mismatches > 0 {
		os.Exit(exitcode.PartialSuccess)
	}
	return nil
}
