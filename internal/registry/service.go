// Package registry manages master data: hospitals, sectors, insurance
// plans, patients and the procedure catalog.
package registry

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
)

const (
	maxShortName     = 20
	maxPatientName   = 400
	maxDiagnosis     = 400
	maxProcedureName = 100
)

type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log.With().Str("component", "registry").Logger()}
}

func checkName(field, name string, max int) (string, error) {
	name = normalize.DisplayName(name)
	if name == "" {
		return "", apperr.Invalid(field, "is required")
	}
	if n := utf8.RuneCountInString(name); n > max {
		return "", apperr.Invalid(field, "is %d characters, max %d", n, max)
	}
	return name, nil
}

// -- Hospitals --

// CreateHospital registers a hospital. A nil rates argument uses the default
// flat rates.
func (s *Service) CreateHospital(ctx context.Context, actor model.Actor, name string, rates *model.FlatRates) (*model.Hospital, error) {
	name, err := checkName("name", name, maxShortName)
	if err != nil {
		return nil, err
	}
	h := &model.Hospital{Name: name, Rates: model.DefaultFlatRates(), CreatedBy: actor.Ref()}
	if rates != nil {
		if err := checkRates(*rates); err != nil {
			return nil, err
		}
		h.Rates = *rates
	}
	if err := s.store.InsertHospital(ctx, h); err != nil {
		return nil, fmt.Errorf("insert hospital: %w", err)
	}
	s.log.Info().Int64("hospital_id", h.ID).Str("name", h.Name).Str("actor", string(actor)).Msg("hospital created")
	return h, nil
}

// UpdateHospitalRates replaces the legacy flat rates of a hospital.
func (s *Service) UpdateHospitalRates(ctx context.Context, actor model.Actor, id int64, rates model.FlatRates) (*model.Hospital, error) {
	if err := checkRates(rates); err != nil {
		return nil, err
	}
	h, err := s.store.GetHospital(ctx, id)
	if err != nil {
		return nil, err
	}
	h.Rates = rates
	if err := s.store.UpdateHospital(ctx, h); err != nil {
		return nil, fmt.Errorf("update hospital %d: %w", id, err)
	}
	s.log.Info().Int64("hospital_id", id).Str("actor", string(actor)).Msg("hospital rates updated")
	return h, nil
}

func checkRates(r model.FlatRates) error {
	fees := []struct {
		field string
		fee   decimal.Decimal
	}{
		{"visit_fee", r.VisitFee},
		{"hemodialysis_fee", r.HemodialysisFee},
		{"hdfc_fee", r.HDFCFee},
		{"catheter_fee", r.CatheterFee},
	}
	for _, f := range fees {
		if f.fee.IsNegative() {
			return apperr.Invalid(f.field, "must be >= 0, got %s", f.fee)
		}
	}
	return nil
}

func (s *Service) DeleteHospital(ctx context.Context, actor model.Actor, id int64) error {
	if err := s.store.DeleteHospital(ctx, id); err != nil {
		return fmt.Errorf("delete hospital %d: %w", id, err)
	}
	s.log.Info().Int64("hospital_id", id).Str("actor", string(actor)).Msg("hospital deleted")
	return nil
}

func (s *Service) Hospitals(ctx context.Context) ([]model.Hospital, error) {
	return s.store.ListHospitals(ctx)
}

// -- Sectors and insurance plans --

func (s *Service) CreateSector(ctx context.Context, actor model.Actor, name string) (*model.Sector, error) {
	name, err := checkName("name", name, maxShortName)
	if err != nil {
		return nil, err
	}
	sec := &model.Sector{Name: name, CreatedBy: actor.Ref()}
	if err := s.store.InsertSector(ctx, sec); err != nil {
		return nil, fmt.Errorf("insert sector: %w", err)
	}
	return sec, nil
}

func (s *Service) DeleteSector(ctx context.Context, actor model.Actor, id int64) error {
	if err := s.store.DeleteSector(ctx, id); err != nil {
		return fmt.Errorf("delete sector %d: %w", id, err)
	}
	s.log.Info().Int64("sector_id", id).Str("actor", string(actor)).Msg("sector deleted")
	return nil
}

func (s *Service) CreateInsurancePlan(ctx context.Context, actor model.Actor, name string) (*model.InsurancePlan, error) {
	name, err := checkName("name", name, maxShortName)
	if err != nil {
		return nil, err
	}
	p := &model.InsurancePlan{Name: name, CreatedBy: actor.Ref()}
	if err := s.store.InsertInsurancePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("insert insurance plan: %w", err)
	}
	return p, nil
}

func (s *Service) DeleteInsurancePlan(ctx context.Context, actor model.Actor, id int64) error {
	if err := s.store.DeleteInsurancePlan(ctx, id); err != nil {
		return fmt.Errorf("delete insurance plan %d: %w", id, err)
	}
	s.log.Info().Int64("insurer_id", id).Str("actor", string(actor)).Msg("insurance plan deleted")
	return nil
}

// -- Patients --

// PatientInput carries the editable patient fields.
type PatientInput struct {
	Name         string
	HospitalID   *int64
	SectorID     *int64
	InsurerID    *int64
	Bed          *string
	Age          *int
	RecordNumber *string
	Diagnosis    string
}

func (s *Service) validatePatient(ctx context.Context, in PatientInput) (string, error) {
	name, err := checkName("name", in.Name, maxPatientName)
	if err != nil {
		return "", err
	}
	if n := utf8.RuneCountInString(in.Diagnosis); n > maxDiagnosis {
		return "", apperr.Invalid("diagnosis", "is %d characters, max %d", n, maxDiagnosis)
	}
	if in.Age != nil && *in.Age < 0 {
		return "", apperr.Invalid("age", "must be >= 0")
	}
	if in.HospitalID != nil {
		if _, err := s.store.GetHospital(ctx, *in.HospitalID); err != nil {
			return "", err
		}
	}
	if in.SectorID != nil {
		if _, err := s.store.GetSector(ctx, *in.SectorID); err != nil {
			return "", err
		}
	}
	if in.InsurerID != nil {
		if _, err := s.store.GetInsurancePlan(ctx, *in.InsurerID); err != nil {
			return "", err
		}
	}
	return name, nil
}

// AdmitPatient creates a patient. The creator is recorded once and never
// changed by later edits.
func (s *Service) AdmitPatient(ctx context.Context, actor model.Actor, in PatientInput) (*model.Patient, error) {
	name, err := s.validatePatient(ctx, in)
	if err != nil {
		return nil, err
	}
	p := &model.Patient{CreatedBy: actor.Ref()}
	applyPatient(p, name, in)
	if err := s.store.InsertPatient(ctx, p); err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	s.log.Info().Int64("patient_id", p.ID).Str("actor", string(actor)).Msg("patient admitted")
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, actor model.Actor, id int64, in PatientInput) (*model.Patient, error) {
	name, err := s.validatePatient(ctx, in)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPatient(p, name, in)
	if err := s.store.UpdatePatient(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient %d: %w", id, err)
	}
	s.log.Info().Int64("patient_id", id).Str("actor", string(actor)).Msg("patient updated")
	return p, nil
}

func applyPatient(p *model.Patient, name string, in PatientInput) {
	p.Name = name
	p.HospitalID = in.HospitalID
	p.SectorID = in.SectorID
	p.InsurerID = in.InsurerID
	p.Bed = in.Bed
	p.Age = in.Age
	p.RecordNumber = in.RecordNumber
	p.Diagnosis = in.Diagnosis
}

// SetDischarged flips the discharge flag.
func (s *Service) SetDischarged(ctx context.Context, actor model.Actor, id int64, discharged bool) (*model.Patient, error) {
	p, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Discharged = discharged
	if err := s.store.UpdatePatient(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient %d: %w", id, err)
	}
	s.log.Info().Int64("patient_id", id).Bool("discharged", discharged).Str("actor", string(actor)).Msg("patient discharge changed")
	return p, nil
}

// DeletePatient removes a patient with its production and timeline.
func (s *Service) DeletePatient(ctx context.Context, actor model.Actor, id int64) error {
	if err := s.store.DeletePatient(ctx, id); err != nil {
		return fmt.Errorf("delete patient %d: %w", id, err)
	}
	s.log.Info().Int64("patient_id", id).Str("actor", string(actor)).Msg("patient deleted")
	return nil
}

func (s *Service) Patient(ctx context.Context, id int64) (*model.Patient, error) {
	return s.store.GetPatient(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, f PatientFilter) ([]model.Patient, error) {
	f.Query = normalize.DisplayName(f.Query)
	return s.store.SearchPatients(ctx, f)
}

// -- Procedures --

// CreateProcedure adds a procedure to the catalog. Codes are normalized and
// must be unique.
func (s *Service) CreateProcedure(ctx context.Context, actor model.Actor, name string, kind model.ProcedureKind, code *string) (*model.Procedure, error) {
	name, err := checkName("name", name, maxProcedureName)
	if err != nil {
		return nil, err
	}
	if _, ok := model.ProcedureKindByName(string(kind)); !ok {
		return nil, apperr.Invalid("kind", "unknown procedure kind %q", kind)
	}
	p := &model.Procedure{
		Code:      normalize.NormalizeCode(code),
		Name:      name,
		Kind:      kind,
		Active:    true,
		CreatedBy: actor.Ref(),
	}
	if err := s.store.InsertProcedure(ctx, p); err != nil {
		if errors.Is(err, apperr.ErrUniqueViolation) {
			return nil, &apperr.ConflictError{Entity: "procedure", Reason: fmt.Sprintf("code %s already exists", *p.Code)}
		}
		return nil, fmt.Errorf("insert procedure: %w", err)
	}
	s.log.Info().Int64("procedure_id", p.ID).Str("name", p.Name).Str("kind", string(kind)).Msg("procedure created")
	return p, nil
}

// EnsureProcedure returns the procedure with code, creating it when missing.
func (s *Service) EnsureProcedure(ctx context.Context, actor model.Actor, code, name string, kind model.ProcedureKind) (*model.Procedure, error) {
	norm := normalize.Code(code)
	if norm == "" {
		return nil, apperr.Invalid("code", "is required")
	}
	p, err := s.store.FindProcedureByCode(ctx, norm)
	if err == nil {
		if p.Kind != kind {
			return nil, &apperr.ConflictError{Entity: "procedure", Reason: fmt.Sprintf("code %s exists with kind %s", norm, p.Kind)}
		}
		return p, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	return s.CreateProcedure(ctx, actor, name, kind, &norm)
}

// DeactivateProcedure hides a procedure from new entries. Historical line
// items keep referencing it.
func (s *Service) DeactivateProcedure(ctx context.Context, actor model.Actor, id int64) error {
	if err := s.store.SetProcedureActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivate procedure %d: %w", id, err)
	}
	s.log.Info().Int64("procedure_id", id).Str("actor", string(actor)).Msg("procedure deactivated")
	return nil
}

func (s *Service) Procedures(ctx context.Context, activeOnly bool) ([]model.Procedure, error) {
	return s.store.ListProcedures(ctx, activeOnly)
}
