// Package timeline records the clinical log of a patient: observations,
// conduct and vascular access devices.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/normalize"
)

const (
	maxObservation        = 4000
	maxConductDescription = 100
	maxAccessDescription  = 20
)

// Store is the timeline persistence. List methods return newest first.
type Store interface {
	GetPatient(ctx context.Context, id int64) (*model.Patient, error)

	InsertObservation(ctx context.Context, o *model.Observation) error
	ListObservations(ctx context.Context, patientID int64) ([]model.Observation, error)

	InsertConductDescription(ctx context.Context, d *model.ConductDescription) error
	GetConductDescription(ctx context.Context, id int64) (*model.ConductDescription, error)
	ListConductDescriptions(ctx context.Context) ([]model.ConductDescription, error)
	InsertConduct(ctx context.Context, c *model.Conduct) error
	ListConduct(ctx context.Context, patientID int64) ([]model.Conduct, error)

	InsertAccessDescription(ctx context.Context, d *model.AccessDescription) error
	GetAccessDescription(ctx context.Context, id int64) (*model.AccessDescription, error)
	ListAccessDescriptions(ctx context.Context) ([]model.AccessDescription, error)
	InsertAccess(ctx context.Context, a *model.VascularAccess) error
	UpdateAccess(ctx context.Context, a *model.VascularAccess) error
	GetAccess(ctx context.Context, id int64) (*model.VascularAccess, error)
	ListAccesses(ctx context.Context, patientID int64) ([]model.VascularAccess, error)
}

type Service struct {
	store Store
	clock model.Clock
	log   zerolog.Logger
}

func NewService(store Store, clock model.Clock, log zerolog.Logger) *Service {
	return &Service{store: store, clock: clock, log: log.With().Str("component", "timeline").Logger()}
}

// AddObservation appends a free-text note to the patient's evolution.
func (s *Service) AddObservation(ctx context.Context, actor model.Actor, patientID int64, text string) (*model.Observation, error) {
	if text == "" {
		return nil, apperr.Invalid("description", "is required")
	}
	if n := utf8.RuneCountInString(text); n > maxObservation {
		return nil, apperr.Invalid("description", "is %d characters, max %d", n, maxObservation)
	}
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	o := &model.Observation{PatientID: patientID, Description: text, CreatedBy: actor.Ref()}
	if err := s.store.InsertObservation(ctx, o); err != nil {
		return nil, fmt.Errorf("insert observation: %w", err)
	}
	return o, nil
}

func (s *Service) CreateConductDescription(ctx context.Context, text string) (*model.ConductDescription, error) {
	text = normalize.DisplayName(text)
	if text == "" {
		return nil, apperr.Invalid("description", "is required")
	}
	if n := utf8.RuneCountInString(text); n > maxConductDescription {
		return nil, apperr.Invalid("description", "is %d characters, max %d", n, maxConductDescription)
	}
	d := &model.ConductDescription{Description: text}
	if err := s.store.InsertConductDescription(ctx, d); err != nil {
		return nil, fmt.Errorf("insert conduct description: %w", err)
	}
	return d, nil
}

// AddConduct records that a catalogued conduct was adopted for the patient.
func (s *Service) AddConduct(ctx context.Context, actor model.Actor, patientID, descriptionID int64) (*model.Conduct, error) {
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	d, err := s.store.GetConductDescription(ctx, descriptionID)
	if err != nil {
		return nil, err
	}
	c := &model.Conduct{PatientID: patientID, DescriptionID: d.ID, Description: d.Description, CreatedBy: actor.Ref()}
	if err := s.store.InsertConduct(ctx, c); err != nil {
		return nil, fmt.Errorf("insert conduct: %w", err)
	}
	return c, nil
}

func (s *Service) CreateAccessDescription(ctx context.Context, text string) (*model.AccessDescription, error) {
	text = normalize.DisplayName(text)
	if text == "" {
		return nil, apperr.Invalid("description", "is required")
	}
	if n := utf8.RuneCountInString(text); n > maxAccessDescription {
		return nil, apperr.Invalid("description", "is %d characters, max %d", n, maxAccessDescription)
	}
	d := &model.AccessDescription{Description: text}
	if err := s.store.InsertAccessDescription(ctx, d); err != nil {
		return nil, fmt.Errorf("insert access description: %w", err)
	}
	return d, nil
}

// AccessInput is the editable part of a vascular access. A zero ID creates a
// new access.
type AccessInput struct {
	ID            int64
	PatientID     int64
	DescriptionID *int64
	ImplantedOn   time.Time
}

// SaveAccess creates or updates a vascular access and snapshots the days
// since implantation from the clock's current date.
func (s *Service) SaveAccess(ctx context.Context, actor model.Actor, in AccessInput) (*model.VascularAccess, error) {
	if in.ImplantedOn.IsZero() {
		return nil, apperr.Invalid("implanted_on", "is required")
	}
	today := model.Day(s.clock.Now())
	implanted := model.Day(in.ImplantedOn)
	if implanted.After(today) {
		return nil, apperr.Invalid("implanted_on", "%s is in the future", implanted.Format(time.DateOnly))
	}
	if in.DescriptionID != nil {
		if _, err := s.store.GetAccessDescription(ctx, *in.DescriptionID); err != nil {
			return nil, err
		}
	}

	var a *model.VascularAccess
	if in.ID == 0 {
		if _, err := s.store.GetPatient(ctx, in.PatientID); err != nil {
			return nil, err
		}
		a = &model.VascularAccess{PatientID: in.PatientID, CreatedBy: actor.Ref()}
	} else {
		var err error
		if a, err = s.store.GetAccess(ctx, in.ID); err != nil {
			return nil, err
		}
	}
	a.DescriptionID = in.DescriptionID
	a.ImplantedOn = implanted
	a.DaysSinceImplantation = model.DaysBetween(implanted, today)

	if in.ID == 0 {
		if err := s.store.InsertAccess(ctx, a); err != nil {
			return nil, fmt.Errorf("insert access: %w", err)
		}
	} else if err := s.store.UpdateAccess(ctx, a); err != nil {
		return nil, fmt.Errorf("update access %d: %w", a.ID, err)
	}
	s.log.Debug().Int64("access_id", a.ID).Int("days", a.DaysSinceImplantation).Msg("vascular access saved")
	return a, nil
}

// Kind tags an Event.
type Kind string

const (
	KindObservation Kind = "observation"
	KindConduct     Kind = "conduct"
	KindAccess      Kind = "access"
)

// Event is one line of a patient's evolution.
type Event struct {
	Kind      Kind
	At        time.Time
	Text      string
	CreatedBy *string
}

// Evolution merges the patient's observations, conduct and accesses, newest first.
func (s *Service) Evolution(ctx context.Context, patientID int64) ([]Event, error) {
	if _, err := s.store.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	obs, err := s.store.ListObservations(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	conduct, err := s.store.ListConduct(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list conduct: %w", err)
	}
	accesses, err := s.store.ListAccesses(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list accesses: %w", err)
	}

	today := s.clock.Now()
	events := make([]Event, 0, len(obs)+len(conduct)+len(accesses))
	for _, o := range obs {
		events = append(events, Event{Kind: KindObservation, At: o.CreatedAt, Text: o.Description, CreatedBy: o.CreatedBy})
	}
	for _, c := range conduct {
		events = append(events, Event{Kind: KindConduct, At: c.CreatedAt, Text: c.Description, CreatedBy: c.CreatedBy})
	}
	for _, a := range accesses {
		text := fmt.Sprintf("implanted %s, %d days", a.ImplantedOn.Format(time.DateOnly), a.CurrentDays(today))
		events = append(events, Event{Kind: KindAccess, At: a.CreatedAt, Text: text, CreatedBy: a.CreatedBy})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.After(events[j].At) })
	return events, nil
}
