// Package memstore is an in-memory implementation of the service stores. It
// enforces the same uniqueness and cascade rules as the Postgres schema and is
// used by unit tests and dry runs.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/apperr"
	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/production"
	"github.com/gyeh/hdprod/internal/registry"
	"github.com/gyeh/hdprod/internal/report"
	"github.com/gyeh/hdprod/internal/tariff"
	"github.com/gyeh/hdprod/internal/timeline"
)

var (
	_ registry.Store   = (*Store)(nil)
	_ tariff.Store     = (*Store)(nil)
	_ production.Store = (*Store)(nil)
	_ timeline.Store   = (*Store)(nil)
	_ report.Store     = (*Store)(nil)
)

type state struct {
	nextID int64

	hospitals  map[int64]model.Hospital
	sectors    map[int64]model.Sector
	insurers   map[int64]model.InsurancePlan
	patients   map[int64]model.Patient
	procedures map[int64]model.Procedure
	tariffs    map[int64]model.TariffEntry
	records    map[int64]model.ProductionRecord
	items      map[int64]model.LineItem

	observations map[int64]model.Observation
	conductDescs map[int64]model.ConductDescription
	conduct      map[int64]model.Conduct
	accessDescs  map[int64]model.AccessDescription
	accesses     map[int64]model.VascularAccess
}

func newState() state {
	return state{
		hospitals:    map[int64]model.Hospital{},
		sectors:      map[int64]model.Sector{},
		insurers:     map[int64]model.InsurancePlan{},
		patients:     map[int64]model.Patient{},
		procedures:   map[int64]model.Procedure{},
		tariffs:      map[int64]model.TariffEntry{},
		records:      map[int64]model.ProductionRecord{},
		items:        map[int64]model.LineItem{},
		observations: map[int64]model.Observation{},
		conductDescs: map[int64]model.ConductDescription{},
		conduct:      map[int64]model.Conduct{},
		accessDescs:  map[int64]model.AccessDescription{},
		accesses:     map[int64]model.VascularAccess{},
	}
}

// Stored values are replaced, never mutated, so cloning the maps is a full
// snapshot.
func (s state) clone() state {
	return state{
		nextID:       s.nextID,
		hospitals:    maps.Clone(s.hospitals),
		sectors:      maps.Clone(s.sectors),
		insurers:     maps.Clone(s.insurers),
		patients:     maps.Clone(s.patients),
		procedures:   maps.Clone(s.procedures),
		tariffs:      maps.Clone(s.tariffs),
		records:      maps.Clone(s.records),
		items:        maps.Clone(s.items),
		observations: maps.Clone(s.observations),
		conductDescs: maps.Clone(s.conductDescs),
		conduct:      maps.Clone(s.conduct),
		accessDescs:  maps.Clone(s.accessDescs),
		accesses:     maps.Clone(s.accesses),
	}
}

// Store holds every entity in maps. Transactions are serialized; a failing
// transaction restores the state it started from.
type Store struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	data  state
	clock model.Clock
}

func New() *Store {
	return &Store{data: newState(), clock: model.SystemClock{}}
}

// WithClock sets the clock used for created_at stamps.
func (s *Store) WithClock(c model.Clock) *Store {
	s.clock = c
	return s
}

type txKey struct{}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func get[V any](m map[int64]V, entity string, id int64) (*V, error) {
	v, ok := m[id]
	if !ok {
		return nil, apperr.NotFound(entity, id)
	}
	return &v, nil
}

func sortedValues[V any](m map[int64]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func sameRef(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// -- Registry --

func (s *Store) InsertHospital(_ context.Context, h *model.Hospital) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.ID, h.CreatedAt = s.id(), s.now()
	s.data.hospitals[h.ID] = *h
	return nil
}

func (s *Store) GetHospital(_ context.Context, id int64) (*model.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.hospitals, "hospital", id)
}

func (s *Store) UpdateHospital(_ context.Context, h *model.Hospital) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.hospitals[h.ID]; !ok {
		return apperr.NotFound("hospital", h.ID)
	}
	s.data.hospitals[h.ID] = *h
	return nil
}

// DeleteHospital nulls patient references and drops the hospital's tariffs.
func (s *Store) DeleteHospital(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.hospitals[id]; !ok {
		return apperr.NotFound("hospital", id)
	}
	delete(s.data.hospitals, id)
	for pid, p := range s.data.patients {
		if p.HospitalID != nil && *p.HospitalID == id {
			p.HospitalID = nil
			s.data.patients[pid] = p
		}
	}
	for tid, t := range s.data.tariffs {
		if t.HospitalID == id {
			delete(s.data.tariffs, tid)
		}
	}
	return nil
}

func (s *Store) ListHospitals(_ context.Context) ([]model.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.data.hospitals, func(a, b model.Hospital) bool { return a.Name < b.Name }), nil
}

func (s *Store) InsertSector(_ context.Context, sec *model.Sector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec.ID, sec.CreatedAt = s.id(), s.now()
	s.data.sectors[sec.ID] = *sec
	return nil
}

func (s *Store) GetSector(_ context.Context, id int64) (*model.Sector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.sectors, "sector", id)
}

func (s *Store) DeleteSector(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.sectors[id]; !ok {
		return apperr.NotFound("sector", id)
	}
	delete(s.data.sectors, id)
	for pid, p := range s.data.patients {
		if p.SectorID != nil && *p.SectorID == id {
			p.SectorID = nil
			s.data.patients[pid] = p
		}
	}
	return nil
}

func (s *Store) ListSectors(_ context.Context) ([]model.Sector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.data.sectors, func(a, b model.Sector) bool { return a.Name < b.Name }), nil
}

func (s *Store) InsertInsurancePlan(_ context.Context, p *model.InsurancePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID, p.CreatedAt = s.id(), s.now()
	s.data.insurers[p.ID] = *p
	return nil
}

func (s *Store) GetInsurancePlan(_ context.Context, id int64) (*model.InsurancePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.insurers, "insurance plan", id)
}

// DeleteInsurancePlan nulls patient references and drops insurer-specific tariffs.
func (s *Store) DeleteInsurancePlan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.insurers[id]; !ok {
		return apperr.NotFound("insurance plan", id)
	}
	delete(s.data.insurers, id)
	for pid, p := range s.data.patients {
		if p.InsurerID != nil && *p.InsurerID == id {
			p.InsurerID = nil
			s.data.patients[pid] = p
		}
	}
	for tid, t := range s.data.tariffs {
		if t.InsurerID != nil && *t.InsurerID == id {
			delete(s.data.tariffs, tid)
		}
	}
	return nil
}

func (s *Store) ListInsurancePlans(_ context.Context) ([]model.InsurancePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.data.insurers, func(a, b model.InsurancePlan) bool { return a.Name < b.Name }), nil
}

func (s *Store) InsertPatient(_ context.Context, p *model.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID, p.CreatedAt = s.id(), s.now()
	s.data.patients[p.ID] = *p
	return nil
}

func (s *Store) GetPatient(_ context.Context, id int64) (*model.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.patients, "patient", id)
}

func (s *Store) UpdatePatient(_ context.Context, p *model.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.patients[p.ID]; !ok {
		return apperr.NotFound("patient", p.ID)
	}
	s.data.patients[p.ID] = *p
	return nil
}

// DeletePatient cascades to production and timeline rows.
func (s *Store) DeletePatient(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.patients[id]; !ok {
		return apperr.NotFound("patient", id)
	}
	delete(s.data.patients, id)
	for rid, r := range s.data.records {
		if r.PatientID != id {
			continue
		}
		delete(s.data.records, rid)
		for iid, li := range s.data.items {
			if li.RecordID == rid {
				delete(s.data.items, iid)
			}
		}
	}
	for oid, o := range s.data.observations {
		if o.PatientID == id {
			delete(s.data.observations, oid)
		}
	}
	for cid, c := range s.data.conduct {
		if c.PatientID == id {
			delete(s.data.conduct, cid)
		}
	}
	for aid, a := range s.data.accesses {
		if a.PatientID == id {
			delete(s.data.accesses, aid)
		}
	}
	return nil
}

func (s *Store) SearchPatients(_ context.Context, f registry.PatientFilter) ([]model.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(f.Query)
	var out []model.Patient
	for _, p := range sortedValues(s.data.patients, func(a, b model.Patient) bool { return a.Name < b.Name }) {
		if !f.IncludeDischarged && p.Discharged {
			continue
		}
		if f.HospitalID != nil && !sameRef(p.HospitalID, f.HospitalID) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) InsertProcedure(_ context.Context, p *model.Procedure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Code != nil {
		for _, other := range s.data.procedures {
			if other.Code != nil && *other.Code == *p.Code {
				return apperr.ErrUniqueViolation
			}
		}
	}
	p.ID, p.CreatedAt = s.id(), s.now()
	s.data.procedures[p.ID] = *p
	return nil
}

func (s *Store) GetProcedure(_ context.Context, id int64) (*model.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.procedures, "procedure", id)
}

func (s *Store) FindProcedureByCode(_ context.Context, code string) (*model.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.data.procedures {
		if p.Code != nil && *p.Code == code {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("procedure", code)
}

func (s *Store) SetProcedureActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.procedures[id]
	if !ok {
		return apperr.NotFound("procedure", id)
	}
	p.Active = active
	s.data.procedures[id] = p
	return nil
}

func (s *Store) ListProcedures(_ context.Context, activeOnly bool) ([]model.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Procedure
	for _, p := range sortedValues(s.data.procedures, func(a, b model.Procedure) bool { return a.Name < b.Name }) {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// -- Tariffs --

func (s *Store) TariffsFor(_ context.Context, procedureID, hospitalID int64) ([]model.TariffEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TariffEntry
	for _, e := range sortedValues(s.data.tariffs, func(a, b model.TariffEntry) bool { return a.ID < b.ID }) {
		if e.ProcedureID == procedureID && e.HospitalID == hospitalID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) InsertTariff(_ context.Context, e *model.TariffEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.data.tariffs {
		if other.ProcedureID == e.ProcedureID && other.HospitalID == e.HospitalID &&
			sameRef(other.InsurerID, e.InsurerID) && other.ValidFrom.Equal(e.ValidFrom) {
			return apperr.ErrUniqueViolation
		}
	}
	e.ID, e.CreatedAt = s.id(), s.now()
	s.data.tariffs[e.ID] = *e
	return nil
}

func (s *Store) GetTariff(_ context.Context, id int64) (*model.TariffEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.tariffs, "tariff", id)
}

func (s *Store) SetTariffEnd(_ context.Context, id int64, end *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data.tariffs[id]
	if !ok {
		return apperr.NotFound("tariff", id)
	}
	e.ValidTo = end
	s.data.tariffs[id] = e
	return nil
}

// -- Production --

func (s *Store) GetRecord(_ context.Context, id int64) (*model.ProductionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.records, "production record", id)
}

// LockRecord is GetRecord: InTx already serializes transactions.
func (s *Store) LockRecord(ctx context.Context, id int64) (*model.ProductionRecord, error) {
	return s.GetRecord(ctx, id)
}

func (s *Store) FindRecord(_ context.Context, patientID int64, day time.Time) (*model.ProductionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day = model.Day(day)
	for _, r := range s.data.records {
		if r.PatientID == patientID && r.Day.Equal(day) {
			return &r, nil
		}
	}
	return nil, apperr.NotFound("production record", day.Format(time.DateOnly))
}

func (s *Store) InsertRecord(_ context.Context, r *model.ProductionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.patients[r.PatientID]; !ok {
		return apperr.NotFound("patient", r.PatientID)
	}
	r.Day = model.Day(r.Day)
	for _, other := range s.data.records {
		if other.PatientID == r.PatientID && other.Day.Equal(r.Day) {
			return apperr.ErrUniqueViolation
		}
	}
	r.ID, r.CreatedAt = s.id(), s.now()
	s.data.records[r.ID] = *r
	return nil
}

func (s *Store) SetRecordTotal(_ context.Context, recordID int64, total decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.records[recordID]
	if !ok {
		return apperr.NotFound("production record", recordID)
	}
	r.Total = total
	s.data.records[recordID] = r
	return nil
}

func (s *Store) RecordIDs(_ context.Context, f production.RecordFilter) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, r := range s.data.records {
		if !s.matches(r, f) {
			continue
		}
		ids = append(ids, r.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) matches(r model.ProductionRecord, f production.RecordFilter) bool {
	if f.PatientID != nil && r.PatientID != *f.PatientID {
		return false
	}
	if f.From != nil && r.Day.Before(model.Day(*f.From)) {
		return false
	}
	if f.To != nil && r.Day.After(model.Day(*f.To)) {
		return false
	}
	if f.HospitalID != nil {
		p, ok := s.data.patients[r.PatientID]
		if !ok || !sameRef(p.HospitalID, f.HospitalID) {
			return false
		}
	}
	return true
}

func (s *Store) ListItems(_ context.Context, recordID int64) ([]model.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LineItem
	for _, li := range sortedValues(s.data.items, func(a, b model.LineItem) bool { return a.ID < b.ID }) {
		if li.RecordID == recordID {
			out = append(out, li)
		}
	}
	return out, nil
}

func (s *Store) GetItem(_ context.Context, id int64) (*model.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.items, "line item", id)
}

func (s *Store) FindItem(_ context.Context, recordID, procedureID int64) (*model.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, li := range s.data.items {
		if li.RecordID == recordID && li.ProcedureID == procedureID {
			return &li, nil
		}
	}
	return nil, apperr.NotFound("line item", procedureID)
}

func (s *Store) InsertItem(_ context.Context, li *model.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.records[li.RecordID]; !ok {
		return apperr.NotFound("production record", li.RecordID)
	}
	for _, other := range s.data.items {
		if other.RecordID == li.RecordID && other.ProcedureID == li.ProcedureID {
			return apperr.ErrUniqueViolation
		}
	}
	li.ID = s.id()
	li.CreatedAt = s.now()
	li.UpdatedAt = li.CreatedAt
	s.data.items[li.ID] = *li
	return nil
}

func (s *Store) UpdateItem(_ context.Context, li *model.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.items[li.ID]; !ok {
		return apperr.NotFound("line item", li.ID)
	}
	li.UpdatedAt = s.now()
	s.data.items[li.ID] = *li
	return nil
}

func (s *Store) DeleteItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.items[id]; !ok {
		return apperr.NotFound("line item", id)
	}
	delete(s.data.items, id)
	return nil
}

// -- Timeline --

func newestFirst[V any](m map[int64]V, patientID int64, pid func(V) int64, at func(V) time.Time, id func(V) int64) []V {
	var out []V
	for _, v := range m {
		if pid(v) == patientID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !at(out[i]).Equal(at(out[j])) {
			return at(out[i]).After(at(out[j]))
		}
		return id(out[i]) > id(out[j])
	})
	return out
}

func (s *Store) InsertObservation(_ context.Context, o *model.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID, o.CreatedAt = s.id(), s.now()
	s.data.observations[o.ID] = *o
	return nil
}

func (s *Store) ListObservations(_ context.Context, patientID int64) ([]model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.data.observations, patientID,
		func(o model.Observation) int64 { return o.PatientID },
		func(o model.Observation) time.Time { return o.CreatedAt },
		func(o model.Observation) int64 { return o.ID }), nil
}

func (s *Store) InsertConductDescription(_ context.Context, d *model.ConductDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	s.data.conductDescs[d.ID] = *d
	return nil
}

func (s *Store) GetConductDescription(_ context.Context, id int64) (*model.ConductDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.conductDescs, "conduct description", id)
}

func (s *Store) ListConductDescriptions(_ context.Context) ([]model.ConductDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.data.conductDescs, func(a, b model.ConductDescription) bool { return a.Description < b.Description }), nil
}

func (s *Store) InsertConduct(_ context.Context, c *model.Conduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID, c.CreatedAt = s.id(), s.now()
	s.data.conduct[c.ID] = *c
	return nil
}

func (s *Store) ListConduct(_ context.Context, patientID int64) ([]model.Conduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := newestFirst(s.data.conduct, patientID,
		func(c model.Conduct) int64 { return c.PatientID },
		func(c model.Conduct) time.Time { return c.CreatedAt },
		func(c model.Conduct) int64 { return c.ID })
	for i := range out {
		out[i].Description = s.data.conductDescs[out[i].DescriptionID].Description
	}
	return out, nil
}

func (s *Store) InsertAccessDescription(_ context.Context, d *model.AccessDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	s.data.accessDescs[d.ID] = *d
	return nil
}

func (s *Store) GetAccessDescription(_ context.Context, id int64) (*model.AccessDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.accessDescs, "access description", id)
}

func (s *Store) ListAccessDescriptions(_ context.Context) ([]model.AccessDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.data.accessDescs, func(a, b model.AccessDescription) bool { return a.Description < b.Description }), nil
}

func (s *Store) InsertAccess(_ context.Context, a *model.VascularAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID, a.CreatedAt = s.id(), s.now()
	s.data.accesses[a.ID] = *a
	return nil
}

func (s *Store) UpdateAccess(_ context.Context, a *model.VascularAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.accesses[a.ID]; !ok {
		return apperr.NotFound("vascular access", a.ID)
	}
	s.data.accesses[a.ID] = *a
	return nil
}

func (s *Store) GetAccess(_ context.Context, id int64) (*model.VascularAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data.accesses, "vascular access", id)
}

func (s *Store) ListAccesses(_ context.Context, patientID int64) ([]model.VascularAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.data.accesses, patientID,
		func(a model.VascularAccess) int64 { return a.PatientID },
		func(a model.VascularAccess) time.Time { return a.CreatedAt },
		func(a model.VascularAccess) int64 { return a.ID }), nil
}
