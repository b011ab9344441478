package registry

import (
	"context"

	"github.com/gyeh/hdprod/internal/model"
)

// PatientFilter narrows a patient search. Query matches names case-insensitively.
type PatientFilter struct {
	Query             string
	HospitalID        *int64
	IncludeDischarged bool
}

// Store is the persistence of master data. Deleting a hospital, sector or
// insurance plan nulls the matching patient references; deleting a patient
// cascades to its production and timeline.
type Store interface {
	InsertHospital(ctx context.Context, h *model.Hospital) error
	GetHospital(ctx context.Context, id int64) (*model.Hospital, error)
	UpdateHospital(ctx context.Context, h *model.Hospital) error
	DeleteHospital(ctx context.Context, id int64) error
	ListHospitals(ctx context.Context) ([]model.Hospital, error)

	InsertSector(ctx context.Context, s *model.Sector) error
	GetSector(ctx context.Context, id int64) (*model.Sector, error)
	DeleteSector(ctx context.Context, id int64) error
	ListSectors(ctx context.Context) ([]model.Sector, error)

	InsertInsurancePlan(ctx context.Context, p *model.InsurancePlan) error
	GetInsurancePlan(ctx context.Context, id int64) (*model.InsurancePlan, error)
	DeleteInsurancePlan(ctx context.Context, id int64) error
	ListInsurancePlans(ctx context.Context) ([]model.InsurancePlan, error)

	InsertPatient(ctx context.Context, p *model.Patient) error
	GetPatient(ctx context.Context, id int64) (*model.Patient, error)
	UpdatePatient(ctx context.Context, p *model.Patient) error
	DeletePatient(ctx context.Context, id int64) error
	SearchPatients(ctx context.Context, f PatientFilter) ([]model.Patient, error)

	InsertProcedure(ctx context.Context, p *model.Procedure) error
	GetProcedure(ctx context.Context, id int64) (*model.Procedure, error)
	FindProcedureByCode(ctx context.Context, code string) (*model.Procedure, error)
	SetProcedureActive(ctx context.Context, id int64, active bool) error
	ListProcedures(ctx context.Context, activeOnly bool) ([]model.Procedure, error)
}
