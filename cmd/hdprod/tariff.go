package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/exitcode"
	"github.com/gyeh/hdprod/internal/ingest"
	"github.com/gyeh/hdprod/internal/tariff"
)

var tariffCmd = &cobra.Command{
	Use:   "tariff",
	Short: "Manage the tariff catalog",
}

var tariffFlags struct {
	procedureID int64
	hospitalID  int64
	id          int64
	price       string
	from        string
	to          string
	day         string
}

var tariffAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a tariff entry",
	RunE:  runTariffAdd,
}

var tariffCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Set the last valid day of a tariff entry",
	RunE:  runTariffClose,
}

var tariffListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the entries of a procedure at a hospital",
	RunE:  runTariffList,
}

var tariffResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show the price in force on a day",
	RunE:  runTariffResolve,
}

var tariffImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load a tariff Parquet file",
	RunE:  runTariffImport,
}

var tariffFlushCmd = &cobra.Command{
	Use:   "flush-cache",
	Short: "Drop every cached tariff list from Redis",
	RunE:  runTariffFlush,
}

func init() {
	f := tariffAddCmd.Flags()
	f.Int64Var(&tariffFlags.procedureID, "procedure-id", 0, "Procedure ID (required)")
	f.Int64Var(&tariffFlags.hospitalID, "hospital-id", 0, "Hospital ID (required)")
	f.Int64("insurer-id", 0, "Insurance plan ID; omit for the hospital default")
	f.StringVar(&tariffFlags.price, "price", "", "Unit price, e.g. 150.25 (required)")
	f.StringVar(&tariffFlags.from, "from", "", "First valid day (required)")
	f.StringVar(&tariffFlags.to, "to", "", "Last valid day; omit for open-ended")
	_ = tariffAddCmd.MarkFlagRequired("procedure-id")
	_ = tariffAddCmd.MarkFlagRequired("hospital-id")
	_ = tariffAddCmd.MarkFlagRequired("price")
	_ = tariffAddCmd.MarkFlagRequired("from")

	f = tariffCloseCmd.Flags()
	f.Int64Var(&tariffFlags.id, "id", 0, "Tariff entry ID (required)")
	f.StringVar(&tariffFlags.to, "end", "", "Last valid day (required)")
	_ = tariffCloseCmd.MarkFlagRequired("id")
	_ = tariffCloseCmd.MarkFlagRequired("end")

	f = tariffListCmd.Flags()
	f.Int64Var(&tariffFlags.procedureID, "procedure-id", 0, "Procedure ID (required)")
	f.Int64Var(&tariffFlags.hospitalID, "hospital-id", 0, "Hospital ID (required)")
	_ = tariffListCmd.MarkFlagRequired("procedure-id")
	_ = tariffListCmd.MarkFlagRequired("hospital-id")

	f = tariffResolveCmd.Flags()
	f.Int64Var(&tariffFlags.procedureID, "procedure-id", 0, "Procedure ID (required)")
	f.Int64Var(&tariffFlags.hospitalID, "hospital-id", 0, "Hospital ID (required)")
	f.Int64("insurer-id", 0, "Insurance plan ID")
	f.StringVar(&tariffFlags.day, "day", "", "Day to price (default today)")
	_ = tariffResolveCmd.MarkFlagRequired("procedure-id")
	_ = tariffResolveCmd.MarkFlagRequired("hospital-id")

	f = tariffImportCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to Parquet file (required)")
	f.BoolVar(&cfg.Force, "force", false, "Re-import even if file SHA already exists")
	f.BoolVar(&cfg.KeepStaging, "keep-staging", false, "Keep staging rows after transform")
	_ = tariffImportCmd.MarkFlagRequired("file")

	tariffCmd.AddCommand(tariffAddCmd, tariffCloseCmd, tariffListCmd, tariffResolveCmd, tariffImportCmd, tariffFlushCmd)
	rootCmd.AddCommand(tariffCmd)
}

func runTariffAdd(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	price, err := parsePrice("price", tariffFlags.price)
	if err != nil {
		fail(log, err, "invalid tariff")
	}
	from, err := parseDay("from", tariffFlags.from)
	if err != nil {
		fail(log, err, "invalid tariff")
	}
	to, err := optDay("to", tariffFlags.to)
	if err != nil {
		fail(log, err, "invalid tariff")
	}

	a := openApp(ctx, log)
	defer a.Close()

	e, err := a.catalog.AddEntry(ctx, actor(), tariff.NewEntry{
		ProcedureID: tariffFlags.procedureID,
		HospitalID:  tariffFlags.hospitalID,
		InsurerID:   optID(cmd, "insurer-id"),
		UnitPrice:   price,
		ValidFrom:   from,
		ValidTo:     to,
	})
	if err != nil {
		fail(log, err, "add tariff failed")
	}
	fmt.Printf("Tariff %d: %s from %s to %s\n", e.ID, e.UnitPrice.StringFixed(2), e.ValidFrom.Format(time.DateOnly), dayString(e.ValidTo))
	return nil
}

func runTariffClose(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	end, err := parseDay("end", tariffFlags.to)
	if err != nil {
		fail(log, err, "invalid end day")
	}

	a := openApp(ctx, log)
	defer a.Close()

	e, err := a.catalog.CloseEntry(ctx, actor(), tariffFlags.id, end)
	if err != nil {
		fail(log, err, "close tariff failed")
	}
	fmt.Printf("Tariff %d now valid %s to %s\n", e.ID, e.ValidFrom.Format(time.DateOnly), dayString(e.ValidTo))
	return nil
}

func runTariffList(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	entries, err := a.catalog.ListEntries(ctx, tariffFlags.procedureID, tariffFlags.hospitalID)
	if err != nil {
		fail(log, err, "list tariffs failed")
	}
	fmt.Printf("%-8s %-8s %12s %-10s %-10s\n", "ID", "INSURER", "PRICE", "FROM", "TO")
	for _, e := range entries {
		fmt.Printf("%-8d %-8s %12s %-10s %-10s\n",
			e.ID, refID(e.InsurerID), e.UnitPrice.StringFixed(2), e.ValidFrom.Format(time.DateOnly), dayString(e.ValidTo))
	}
	return nil
}

func runTariffResolve(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	day, err := parseDay("day", tariffFlags.day)
	if err != nil {
		fail(log, err, "invalid day")
	}
	if day.IsZero() {
		day = time.Now()
	}

	a := openApp(ctx, log)
	defer a.Close()

	res, err := a.resolver.Resolve(ctx, tariff.Query{
		ProcedureID: tariffFlags.procedureID,
		HospitalID:  tariffFlags.hospitalID,
		InsurerID:   optID(cmd, "insurer-id"),
		Day:         day,
	})
	if err != nil {
		fail(log, err, "resolve failed")
	}
	if !res.Found() {
		fmt.Printf("No tariff on %s: price 0.00\n", day.Format(time.DateOnly))
		return nil
	}
	fmt.Printf("Price %s (tariff %d, insurer %s, from %s to %s)\n",
		res.Price.StringFixed(2), res.Entry.ID, refID(res.Entry.InsurerID),
		res.Entry.ValidFrom.Format(time.DateOnly), dayString(res.Entry.ValidTo))
	return nil
}

func runTariffImport(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	a := openApp(ctx, log)
	defer a.Close()

	summary, err := ingest.RunTariffs(ctx, a.pool, log, &cfg, a.invalidator())
	if err != nil {
		var pe *ingest.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("import failed")
			os.Exit(exitCode(err))
		}
		fail(log, err, "import failed")
	}

	if summary.AlreadyLoaded {
		fmt.Printf("File already imported (import %d); use --force to reload\n", summary.ImportID)
		return nil
	}
	fmt.Printf("Import complete: %d rows read, %d inserted, %d skipped, %d rejected (%.1fs)\n",
		summary.RowsRead, summary.RowsInserted, summary.RowsSkipped, summary.RowsRejected, summary.DurationTotal.Seconds())
	if summary.RowsRejected > 0 {
		os.Exit(exitcode.PartialSuccess)
	}
	return nil
}

func runTariffFlush(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	if a.cache == nil {
		fail(log, apperr.Invalid("redis", "--redis or HDPROD_REDIS_ADDR is required"), "no cache configured")
	}
	n, err := a.cache.Flush(ctx)
	if err != nil {
		log.Error().Err(err).Msg("flush failed")
		os.Exit(exitcode.DBConnError)
	}
	fmt.Printf("Dropped %d cached tariff lists\n", n)
	return nil
}
