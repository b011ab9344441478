package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/timeline"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Record and show a patient's evolution",
}

var timelineFlags struct {
	patientID     int64
	id            int64
	descriptionID int64
	text          string
	kind          string
	implanted     string
}

func init() {
	observe := &cobra.Command{Use: "observe", Short: "Add an observation", RunE: runTimelineObserve}
	observe.Flags().Int64Var(&timelineFlags.patientID, "patient-id", 0, "Patient ID (required)")
	observe.Flags().StringVar(&timelineFlags.text, "text", "", "Observation text (required)")
	_ = observe.MarkFlagRequired("patient-id")
	_ = observe.MarkFlagRequired("text")

	conduct := &cobra.Command{Use: "conduct", Short: "Record a conduct for a patient", RunE: runTimelineConduct}
	conduct.Flags().Int64Var(&timelineFlags.patientID, "patient-id", 0, "Patient ID (required)")
	conduct.Flags().Int64Var(&timelineFlags.descriptionID, "description-id", 0, "Conduct description ID (required)")
	_ = conduct.MarkFlagRequired("patient-id")
	_ = conduct.MarkFlagRequired("description-id")

	access := &cobra.Command{Use: "access", Short: "Create or update a vascular access", RunE: runTimelineAccess}
	access.Flags().Int64Var(&timelineFlags.id, "id", 0, "Access ID to update; omit to create")
	access.Flags().Int64Var(&timelineFlags.patientID, "patient-id", 0, "Patient ID (required)")
	access.Flags().Int64("description-id", 0, "Access description ID")
	access.Flags().StringVar(&timelineFlags.implanted, "implanted", "", "Implantation day (required)")
	_ = access.MarkFlagRequired("patient-id")
	_ = access.MarkFlagRequired("implanted")

	describe := &cobra.Command{Use: "describe", Short: "Add a conduct or access description", RunE: runTimelineDescribe}
	describe.Flags().StringVar(&timelineFlags.kind, "kind", "", "conduct or access (required)")
	describe.Flags().StringVar(&timelineFlags.text, "text", "", "Description (required)")
	_ = describe.MarkFlagRequired("kind")
	_ = describe.MarkFlagRequired("text")

	show := &cobra.Command{Use: "show", Short: "Print a patient's evolution, newest first", RunE: runTimelineShow}
	show.Flags().Int64Var(&timelineFlags.patientID, "patient-id", 0, "Patient ID (required)")
	_ = show.MarkFlagRequired("patient-id")

	timelineCmd.AddCommand(observe, conduct, access, describe, show)
	rootCmd.AddCommand(timelineCmd)
}

func runTimelineObserve(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	o, err := a.timeline.AddObservation(ctx, actor(), timelineFlags.patientID, timelineFlags.text)
	if err != nil {
		fail(log, err, "add observation failed")
	}
	fmt.Printf("Observation %d for patient %d\n", o.ID, o.PatientID)
	return nil
}

func runTimelineConduct(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	c, err := a.timeline.AddConduct(ctx, actor(), timelineFlags.patientID, timelineFlags.descriptionID)
	if err != nil {
		fail(log, err, "add conduct failed")
	}
	fmt.Printf("Conduct %d for patient %d\n", c.ID, c.PatientID)
	return nil
}

func runTimelineAccess(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	implanted, err := parseDay("implanted", timelineFlags.implanted)
	if err != nil {
		fail(log, err, "invalid access")
	}

	a := openApp(ctx, log)
	defer a.Close()

	acc, err := a.timeline.SaveAccess(ctx, actor(), timeline.AccessInput{
		ID:            timelineFlags.id,
		PatientID:     timelineFlags.patientID,
		DescriptionID: optID(cmd, "description-id"),
		ImplantedOn:   implanted,
	})
	if err != nil {
		fail(log, err, "save access failed")
	}
	fmt.Printf("Access %d implanted %s, %d days\n", acc.ID, acc.ImplantedOn.Format(time.DateOnly), acc.DaysSinceImplantation)
	return nil
}

func runTimelineDescribe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	if timelineFlags.kind != "conduct" && timelineFlags.kind != "access" {
		fail(log, apperr.Invalid("kind", "%q is not conduct or access", timelineFlags.kind), "invalid description")
	}

	a := openApp(ctx, log)
	defer a.Close()

	if timelineFlags.kind == "conduct" {
		d, err := a.timeline.CreateConductDescription(ctx, timelineFlags.text)
		if err != nil {
			fail(log, err, "add conduct description failed")
		}
		fmt.Printf("Conduct description %d %q\n", d.ID, d.Description)
		return nil
	}
	d, err := a.timeline.CreateAccessDescription(ctx, timelineFlags.text)
	if err != nil {
		fail(log, err, "add access description failed")
	}
	fmt.Printf("Access description %d %q\n", d.ID, d.Description)
	return nil
}

func runTimelineShow(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	events, err := a.timeline.Evolution(ctx, timelineFlags.patientID)
	if err != nil {
		fail(log, err, "evolution failed")
	}
	for _, e := range events {
		fmt.Printf("%s  %-11s %-12s %s\n", e.At.Format("2006-01-02 15:04"), e.Kind, refString(e.CreatedBy), e.Text)
	}
	return nil
}
