package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/exitcode"
	"github.com/gyeh/hdprod/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Dashboard counters, daily totals and exports",
}

var reportFlags struct {
	from   string
	to     string
	format string
	out    string
	limit  int
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print hospital and patient counts and the production total",
	RunE:  runReportSummary,
}

var reportDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Print production per hospital and day",
	RunE:  runReportDaily,
}

var reportRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the newest production records",
	RunE:  runReportRecent,
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export line items as XLSX or Parquet",
	RunE:  runReportExport,
}

func periodFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&reportFlags.from, "from", "", "First day")
	f.StringVar(&reportFlags.to, "to", "", "Last day")
	f.Int64("hospital-id", 0, "Only this hospital")
}

func init() {
	periodFlags(reportDailyCmd)
	periodFlags(reportRecentCmd)
	reportRecentCmd.Flags().IntVar(&reportFlags.limit, "limit", report.DefaultRecentLimit, "Maximum records")
	periodFlags(reportExportCmd)
	reportExportCmd.Flags().StringVar(&reportFlags.format, "format", report.FormatXLSX, "xlsx or parquet")
	reportExportCmd.Flags().StringVar(&reportFlags.out, "out", "", "Output file (required)")
	_ = reportExportCmd.MarkFlagRequired("out")

	reportCmd.AddCommand(reportSummaryCmd, reportDailyCmd, reportRecentCmd, reportExportCmd)
	rootCmd.AddCommand(reportCmd)
}

func period(cmd *cobra.Command) (report.Period, error) {
	from, err := optDay("from", reportFlags.from)
	if err != nil {
		return report.Period{}, err
	}
	to, err := optDay("to", reportFlags.to)
	if err != nil {
		return report.Period{}, err
	}
	return report.Period{From: from, To: to, HospitalID: optID(cmd, "hospital-id")}, nil
}

func runReportSummary(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	d, err := a.report.Summary(ctx)
	if err != nil {
		fail(log, err, "summary failed")
	}
	fmt.Printf("Hospitals:        %d\n", d.Hospitals)
	fmt.Printf("Patients:         %d\n", d.Patients)
	fmt.Printf("Production total: %s\n", d.ProductionTotal.StringFixed(2))
	return nil
}

func runReportDaily(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	p, err := period(cmd)
	if err != nil {
		fail(log, err, "invalid period")
	}
	a := openApp(ctx, log)
	defer a.Close()

	days, err := a.report.Daily(ctx, p)
	if err != nil {
		fail(log, err, "daily report failed")
	}
	fmt.Printf("%-10s %-30s %8s %12s\n", "DAY", "HOSPITAL", "PATIENTS", "TOTAL")
	for _, d := range days {
		name := d.HospitalName
		if d.HospitalID == 0 {
			name = "(no hospital)"
		}
		fmt.Printf("%-10s %-30s %8d %12s\n", d.Day.Format(time.DateOnly), name, d.Patients, d.Total.StringFixed(2))
	}
	return nil
}

func runReportRecent(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	p, err := period(cmd)
	if err != nil {
		fail(log, err, "invalid period")
	}
	a := openApp(ctx, log)
	defer a.Close()

	recs, err := a.report.Recent(ctx, p, reportFlags.limit)
	if err != nil {
		fail(log, err, "recent records failed")
	}
	fmt.Printf("%-8s %-10s %-30s %-24s %12s\n", "RECORD", "DAY", "PATIENT", "HOSPITAL", "TOTAL")
	for _, r := range recs {
		fmt.Printf("%-8d %-10s %-30s %-24s %12s\n",
			r.RecordID, r.Day.Format(time.DateOnly), r.PatientName, refString(r.HospitalName), r.Total.StringFixed(2))
	}
	return nil
}

func runReportExport(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	p, err := period(cmd)
	if err != nil {
		fail(log, err, "invalid period")
	}
	a := openApp(ctx, log)
	defer a.Close()

	f, err := os.Create(reportFlags.out)
	if err != nil {
		log.Error().Err(err).Str("out", reportFlags.out).Msg("create output failed")
		os.Exit(exitcode.UsageError)
	}
	n, err := export(ctx, a.report, f, p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(reportFlags.out)
		fail(log, err, "export failed")
	}
	fmt.Printf("Exported %d lines to %s\n", n, reportFlags.out)
	return nil
}

func export(ctx context.Context, svc *report.Service, w io.Writer, p report.Period) (int, error) {
	bw := bufio.NewWriter(w)
	n, err := svc.Export(ctx, bw, reportFlags.format, p)
	if err != nil {
		return 0, err
	}
	return n, bw.Flush()
}
