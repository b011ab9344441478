package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/production"
)

var productionCmd = &cobra.Command{
	Use:   "production",
	Short: "Record and repair daily production",
}

var productionFlags struct {
	patientID int64
	recordID  int64
	itemID    int64
	day       string
	from      string
	to        string
	items     []string
	deletes   []int64
}

var productionEnterCmd = &cobra.Command{
	Use:   "enter",
	Short: "Enter a patient's procedures for a day",
	Long: "Gets or creates the patient's record for the day and upserts one line item per --item.\n" +
		"An explicit @PRICE overrides the tariff; --delete removes a procedure's item.",
	Example: "  hdprod production enter --patient-id 12 --day 2024-03-05 --item 3=2 --item 4=1@180.00 --delete 7",
	RunE:    runProductionEnter,
}

var productionDeleteItemCmd = &cobra.Command{
	Use:   "delete-item",
	Short: "Delete a line item and update its record total",
	RunE:  runProductionDeleteItem,
}

var productionRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute one record total from its line items",
	RunE:  runProductionRecompute,
}

var productionBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute every matching record total",
	RunE:  runProductionBackfill,
}

func init() {
	f := productionEnterCmd.Flags()
	f.Int64Var(&productionFlags.patientID, "patient-id", 0, "Patient ID (required)")
	f.StringVar(&productionFlags.day, "day", "", "Production day (default today)")
	f.StringArrayVar(&productionFlags.items, "item", nil, "PROCEDURE_ID=QUANTITY[@PRICE], repeatable")
	f.Int64SliceVar(&productionFlags.deletes, "delete", nil, "Procedure ID whose item to remove, repeatable")
	_ = productionEnterCmd.MarkFlagRequired("patient-id")

	productionDeleteItemCmd.Flags().Int64Var(&productionFlags.itemID, "id", 0, "Line item ID (required)")
	_ = productionDeleteItemCmd.MarkFlagRequired("id")

	productionRecomputeCmd.Flags().Int64Var(&productionFlags.recordID, "record-id", 0, "Record ID (required)")
	_ = productionRecomputeCmd.MarkFlagRequired("record-id")

	f = productionBackfillCmd.Flags()
	f.Int64("hospital-id", 0, "Only records of this hospital's patients")
	f.Int64("patient-id", 0, "Only this patient's records")
	f.StringVar(&productionFlags.from, "from", "", "First day")
	f.StringVar(&productionFlags.to, "to", "", "Last day")

	productionCmd.AddCommand(productionEnterCmd, productionDeleteItemCmd, productionRecomputeCmd, productionBackfillCmd)
	rootCmd.AddCommand(productionCmd)
}

func runProductionEnter(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	day, err := parseDay("day", productionFlags.day)
	if err != nil {
		fail(log, err, "invalid day")
	}
	entries := make([]production.DayEntry, 0, len(productionFlags.items)+len(productionFlags.deletes))
	for _, v := range productionFlags.items {
		e, err := parseEntry(v)
		if err != nil {
			fail(log, err, "invalid item")
		}
		entries = append(entries, e)
	}
	for _, id := range productionFlags.deletes {
		entries = append(entries, production.DayEntry{ProcedureID: id, Delete: true})
	}

	a := openApp(ctx, log)
	defer a.Close()

	rec, items, err := a.prod.EnterDay(ctx, actor(), productionFlags.patientID, day, entries)
	if err != nil {
		fail(log, err, "enter production failed")
	}
	printRecord(rec, items)
	return nil
}

func printRecord(rec *model.ProductionRecord, items []model.LineItem) {
	fmt.Printf("Record %d, patient %d, %s\n", rec.ID, rec.PatientID, rec.Day.Format(time.DateOnly))
	for _, li := range items {
		fmt.Printf("  item %-6d procedure %-6d qty %-3d x %10s = %10s  (%s)\n",
			li.ID, li.ProcedureID, li.Quantity, li.UnitPrice.StringFixed(2), li.Amount().StringFixed(2), li.PriceSource)
	}
	fmt.Printf("Total: %s\n", rec.Total.StringFixed(2))
}

func runProductionDeleteItem(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	if err := a.prod.DeleteLineItem(ctx, actor(), productionFlags.itemID); err != nil {
		fail(log, err, "delete item failed")
	}
	fmt.Printf("Deleted item %d\n", productionFlags.itemID)
	return nil
}

func runProductionRecompute(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	total, err := a.prod.RecomputeTotal(ctx, productionFlags.recordID)
	if err != nil {
		fail(log, err, "recompute failed")
	}
	fmt.Printf("Record %d total: %s\n", productionFlags.recordID, total.StringFixed(2))
	return nil
}

func runProductionBackfill(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	from, err := optDay("from", productionFlags.from)
	if err != nil {
		fail(log, err, "invalid period")
	}
	to, err := optDay("to", productionFlags.to)
	if err != nil {
		fail(log, err, "invalid period")
	}

	a := openApp(ctx, log)
	defer a.Close()

	summary, err := a.prod.Backfill(ctx, production.RecordFilter{
		HospitalID: optID(cmd, "hospital-id"),
		PatientID:  optID(cmd, "patient-id"),
		From:       from,
		To:         to,
	})
	if err != nil {
		fail(log, err, "backfill failed")
	}
	fmt.Printf("Backfill complete: %d records scanned, %d corrected (%.1fs)\n",
		summary.RecordsScanned, summary.RecordsChanged, summary.Duration.Seconds())
	return nil
}
