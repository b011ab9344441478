package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage hospitals, sectors, insurers, patients and procedures",
}

var registryFlags struct {
	id        int64
	name      string
	kind      string
	code      string
	query     string
	bed       string
	record    string
	diagnosis string
	age       int
	all       bool
	undo      bool
}

var (
	hospitalCmd  = &cobra.Command{Use: "hospital", Short: "Hospitals and their flat rates"}
	sectorCmd    = &cobra.Command{Use: "sector", Short: "Hospital sectors"}
	insurerCmd   = &cobra.Command{Use: "insurer", Short: "Insurance plans"}
	patientCmd   = &cobra.Command{Use: "patient", Short: "Patients"}
	procedureCmd = &cobra.Command{Use: "procedure", Short: "Billable procedures"}
)

var rateFlags = []struct {
	name string
	help string
	set  func(r *model.FlatRates, v string) error
}{
	{"visit-fee", "Visit/opinion flat fee", func(r *model.FlatRates, v string) (err error) {
		r.VisitFee, err = parsePrice("visit-fee", v)
		return
	}},
	{"hd-fee", "Hemodialysis flat fee", func(r *model.FlatRates, v string) (err error) {
		r.HemodialysisFee, err = parsePrice("hd-fee", v)
		return
	}},
	{"hdfc-fee", "HDFC flat fee", func(r *model.FlatRates, v string) (err error) {
		r.HDFCFee, err = parsePrice("hdfc-fee", v)
		return
	}},
	{"catheter-fee", "Catheter flat fee", func(r *model.FlatRates, v string) (err error) {
		r.CatheterFee, err = parsePrice("catheter-fee", v)
		return
	}},
}

func addRateFlags(cmd *cobra.Command) {
	for _, rf := range rateFlags {
		cmd.Flags().String(rf.name, "", rf.help)
	}
}

// applyRateFlags overwrites the rates whose flags were set on cmd.
func applyRateFlags(cmd *cobra.Command, r *model.FlatRates) (changed bool, err error) {
	for _, rf := range rateFlags {
		if !cmd.Flags().Changed(rf.name) {
			continue
		}
		v, _ := cmd.Flags().GetString(rf.name)
		if err := rf.set(r, v); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

func optString(cmd *cobra.Command, name, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func init() {
	hospitalAdd := &cobra.Command{Use: "add", Short: "Register a hospital", RunE: runHospitalAdd}
	hospitalAdd.Flags().StringVar(&registryFlags.name, "name", "", "Hospital name (required)")
	addRateFlags(hospitalAdd)
	_ = hospitalAdd.MarkFlagRequired("name")

	hospitalRates := &cobra.Command{Use: "rates", Short: "Change a hospital's flat rates", RunE: runHospitalRates}
	hospitalRates.Flags().Int64Var(&registryFlags.id, "id", 0, "Hospital ID (required)")
	addRateFlags(hospitalRates)
	_ = hospitalRates.MarkFlagRequired("id")

	hospitalList := &cobra.Command{Use: "list", Short: "List hospitals", RunE: runHospitalList}
	hospitalCmd.AddCommand(hospitalAdd, hospitalRates, hospitalList)

	sectorAdd := &cobra.Command{Use: "add", Short: "Register a sector", RunE: runSectorAdd}
	sectorAdd.Flags().StringVar(&registryFlags.name, "name", "", "Sector name (required)")
	_ = sectorAdd.MarkFlagRequired("name")
	sectorCmd.AddCommand(sectorAdd)

	insurerAdd := &cobra.Command{Use: "add", Short: "Register an insurance plan", RunE: runInsurerAdd}
	insurerAdd.Flags().StringVar(&registryFlags.name, "name", "", "Plan name (required)")
	_ = insurerAdd.MarkFlagRequired("name")
	insurerCmd.AddCommand(insurerAdd)

	patientAdd := &cobra.Command{Use: "add", Short: "Admit a patient", RunE: runPatientAdd}
	f := patientAdd.Flags()
	f.StringVar(&registryFlags.name, "name", "", "Patient name (required)")
	f.Int64("hospital-id", 0, "Hospital ID")
	f.Int64("sector-id", 0, "Sector ID")
	f.Int64("insurer-id", 0, "Insurance plan ID")
	f.StringVar(&registryFlags.bed, "bed", "", "Bed or room number")
	f.IntVar(&registryFlags.age, "age", 0, "Age in years")
	f.StringVar(&registryFlags.record, "record", "", "Medical record number")
	f.StringVar(&registryFlags.diagnosis, "diagnosis", "", "Diagnosis")
	_ = patientAdd.MarkFlagRequired("name")

	patientSearch := &cobra.Command{Use: "search", Short: "Find patients by name", RunE: runPatientSearch}
	patientSearch.Flags().StringVar(&registryFlags.query, "query", "", "Name fragment")
	patientSearch.Flags().Int64("hospital-id", 0, "Only this hospital")
	patientSearch.Flags().BoolVar(&registryFlags.all, "all", false, "Include discharged patients")

	patientDischarge := &cobra.Command{Use: "discharge", Short: "Mark a patient discharged", RunE: runPatientDischarge}
	patientDischarge.Flags().Int64Var(&registryFlags.id, "id", 0, "Patient ID (required)")
	patientDischarge.Flags().BoolVar(&registryFlags.undo, "undo", false, "Readmit instead")
	_ = patientDischarge.MarkFlagRequired("id")
	patientCmd.AddCommand(patientAdd, patientSearch, patientDischarge)

	procedureAdd := &cobra.Command{Use: "add", Short: "Register a procedure", RunE: runProcedureAdd}
	procedureAdd.Flags().StringVar(&registryFlags.name, "name", "", "Procedure name (required)")
	procedureAdd.Flags().StringVar(&registryFlags.kind, "kind", string(model.KindBoolean), "boolean or countable")
	procedureAdd.Flags().StringVar(&registryFlags.code, "code", "", "Import code")
	_ = procedureAdd.MarkFlagRequired("name")

	procedureList := &cobra.Command{Use: "list", Short: "List procedures", RunE: runProcedureList}
	procedureList.Flags().BoolVar(&registryFlags.all, "all", false, "Include inactive procedures")

	procedureDeactivate := &cobra.Command{Use: "deactivate", Short: "Stop billing a procedure", RunE: runProcedureDeactivate}
	procedureDeactivate.Flags().Int64Var(&registryFlags.id, "id", 0, "Procedure ID (required)")
	_ = procedureDeactivate.MarkFlagRequired("id")
	procedureCmd.AddCommand(procedureAdd, procedureList, procedureDeactivate)

	registryCmd.AddCommand(hospitalCmd, sectorCmd, insurerCmd, patientCmd, procedureCmd)
	rootCmd.AddCommand(registryCmd)
}

func printRates(h *model.Hospital) {
	fmt.Printf("Hospital %d %q: visit %s, hd %s, hdfc %s, catheter %s\n", h.ID, h.Name,
		h.Rates.VisitFee.StringFixed(2), h.Rates.HemodialysisFee.StringFixed(2),
		h.Rates.HDFCFee.StringFixed(2), h.Rates.CatheterFee.StringFixed(2))
}

func runHospitalAdd(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	rates := model.DefaultFlatRates()
	changed, err := applyRateFlags(cmd, &rates)
	if err != nil {
		fail(log, err, "invalid rates")
	}
	var in *model.FlatRates
	if changed {
		in = &rates
	}

	a := openApp(ctx, log)
	defer a.Close()

	h, err := a.registry.CreateHospital(ctx, actor(), registryFlags.name, in)
	if err != nil {
		fail(log, err, "add hospital failed")
	}
	printRates(h)
	return nil
}

func runHospitalRates(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	h, err := a.store.GetHospital(ctx, registryFlags.id)
	if err != nil {
		fail(log, err, "hospital lookup failed")
	}
	rates := h.Rates
	changed, err := applyRateFlags(cmd, &rates)
	if err != nil {
		fail(log, err, "invalid rates")
	}
	if !changed {
		fail(log, apperr.Invalid("rates", "set at least one fee flag"), "nothing to change")
	}
	h, err = a.registry.UpdateHospitalRates(ctx, actor(), h.ID, rates)
	if err != nil {
		fail(log, err, "update rates failed")
	}
	printRates(h)
	return nil
}

func runHospitalList(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	hs, err := a.registry.Hospitals(ctx)
	if err != nil {
		fail(log, err, "list hospitals failed")
	}
	fmt.Printf("%-6s %-24s %10s %10s %10s %10s\n", "ID", "NAME", "VISIT", "HD", "HDFC", "CATHETER")
	for _, h := range hs {
		fmt.Printf("%-6d %-24s %10s %10s %10s %10s\n", h.ID, h.Name,
			h.Rates.VisitFee.StringFixed(2), h.Rates.HemodialysisFee.StringFixed(2),
			h.Rates.HDFCFee.StringFixed(2), h.Rates.CatheterFee.StringFixed(2))
	}
	return nil
}

func runSectorAdd(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	s, err := a.registry.CreateSector(ctx, actor(), registryFlags.name)
	if err != nil {
		fail(log, err, "add sector failed")
	}
	fmt.Printf("Sector %d %q\n", s.ID, s.Name)
	return nil
}

func runInsurerAdd(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	p, err := a.registry.CreateInsurancePlan(ctx, actor(), registryFlags.name)
	if err != nil {
		fail(log, err, "add insurance plan failed")
	}
	fmt.Printf("Insurance plan %d %q\n", p.ID, p.Name)
	return nil
}

func runPatientAdd(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	in := registry.PatientInput{
		Name:         registryFlags.name,
		HospitalID:   optID(cmd, "hospital-id"),
		SectorID:     optID(cmd, "sector-id"),
		InsurerID:    optID(cmd, "insurer-id"),
		Bed:          optString(cmd, "bed", registryFlags.bed),
		RecordNumber: optString(cmd, "record", registryFlags.record),
		Diagnosis:    registryFlags.diagnosis,
	}
	if cmd.Flags().Changed("age") {
		age := registryFlags.age
		in.Age = &age
	}

	a := openApp(ctx, log)
	defer a.Close()

	p, err := a.registry.AdmitPatient(ctx, actor(), in)
	if err != nil {
		fail(log, err, "admit patient failed")
	}
	fmt.Printf("Patient %d %q at hospital %s\n", p.ID, p.Name, refID(p.HospitalID))
	return nil
}

func runPatientSearch(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	ps, err := a.registry.SearchPatients(ctx, registry.PatientFilter{
		Query:             registryFlags.query,
		HospitalID:        optID(cmd, "hospital-id"),
		IncludeDischarged: registryFlags.all,
	})
	if err != nil {
		fail(log, err, "patient search failed")
	}
	fmt.Printf("%-6s %-32s %-8s %-8s %-10s %s\n", "ID", "NAME", "HOSPITAL", "BED", "ADMITTED", "STATUS")
	for _, p := range ps {
		status := "in"
		if p.Discharged {
			status = "discharged"
		}
		fmt.Printf("%-6d %-32s %-8s %-8s %-10s %s\n",
			p.ID, p.Name, refID(p.HospitalID), refString(p.Bed), p.CreatedAt.Format(time.DateOnly), status)
	}
	return nil
}

func runPatientDischarge(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	p, err := a.registry.SetDischarged(ctx, actor(), registryFlags.id, !registryFlags.undo)
	if err != nil {
		fail(log, err, "discharge failed")
	}
	fmt.Printf("Patient %d discharged=%t\n", p.ID, p.Discharged)
	return nil
}

func runProcedureAdd(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	kind, ok := model.ProcedureKindByName(registryFlags.kind)
	if !ok {
		fail(log, apperr.Invalid("kind", "%q is not boolean or countable", registryFlags.kind), "invalid procedure")
	}

	a := openApp(ctx, log)
	defer a.Close()

	p, err := a.registry.CreateProcedure(ctx, actor(), registryFlags.name, kind, optString(cmd, "code", registryFlags.code))
	if err != nil {
		fail(log, err, "add procedure failed")
	}
	fmt.Printf("Procedure %d %q (%s, code %s)\n", p.ID, p.Name, p.Kind, refString(p.Code))
	return nil
}

func runProcedureList(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	ps, err := a.registry.Procedures(ctx, !registryFlags.all)
	if err != nil {
		fail(log, err, "list procedures failed")
	}
	fmt.Printf("%-6s %-12s %-28s %-10s %s\n", "ID", "CODE", "NAME", "KIND", "ACTIVE")
	for _, p := range ps {
		fmt.Printf("%-6d %-12s %-28s %-10s %t\n", p.ID, refString(p.Code), p.Name, p.Kind, p.Active)
	}
	return nil
}

func runProcedureDeactivate(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()
	a := openApp(ctx, log)
	defer a.Close()

	if err := a.registry.DeactivateProcedure(ctx, actor(), registryFlags.id); err != nil {
		fail(log, err, "deactivate procedure failed")
	}
	fmt.Printf("Procedure %d deactivated\n", registryFlags.id)
	return nil
}
