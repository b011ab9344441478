package memstore

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/report"
)

func (s *Store) Dashboard(_ context.Context) (*model.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &model.Dashboard{
		Hospitals:       len(s.data.hospitals),
		Patients:        len(s.data.patients),
		ProductionTotal: decimal.Zero,
	}
	for _, r := range s.data.records {
		d.ProductionTotal = d.ProductionTotal.Add(r.Total)
	}
	return d, nil
}

func (s *Store) inPeriod(r model.ProductionRecord, p report.Period) bool {
	if p.From != nil && r.Day.Before(model.Day(*p.From)) {
		return false
	}
	if p.To != nil && r.Day.After(model.Day(*p.To)) {
		return false
	}
	if p.HospitalID != nil {
		pat := s.data.patients[r.PatientID]
		if !sameRef(pat.HospitalID, p.HospitalID) {
			return false
		}
	}
	return true
}

func (s *Store) hospitalOf(patientID int64) (int64, *string) {
	pat := s.data.patients[patientID]
	if pat.HospitalID == nil {
		return 0, nil
	}
	h, ok := s.data.hospitals[*pat.HospitalID]
	if !ok {
		return 0, nil
	}
	return h.ID, &h.Name
}

func (s *Store) HospitalDays(_ context.Context, p report.Period) ([]model.HospitalDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		hospitalID int64
		day        int64
	}
	groups := map[key]*model.HospitalDay{}
	patients := map[key]map[int64]bool{}
	for _, r := range s.data.records {
		if !s.inPeriod(r, p) {
			continue
		}
		hid, name := s.hospitalOf(r.PatientID)
		k := key{hid, r.Day.Unix()}
		g, ok := groups[k]
		if !ok {
			g = &model.HospitalDay{HospitalID: hid, Day: r.Day, Total: decimal.Zero}
			if name != nil {
				g.HospitalName = *name
			}
			groups[k] = g
			patients[k] = map[int64]bool{}
		}
		g.Total = g.Total.Add(r.Total)
		patients[k][r.PatientID] = true
	}

	out := make([]model.HospitalDay, 0, len(groups))
	for k, g := range groups {
		g.Patients = len(patients[k])
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case !a.Day.Equal(b.Day):
			return a.Day.Before(b.Day)
		case (a.HospitalID == 0) != (b.HospitalID == 0):
			return b.HospitalID == 0 // no hospital sorts last
		case a.HospitalName != b.HospitalName:
			return a.HospitalName < b.HospitalName
		default:
			return a.HospitalID < b.HospitalID
		}
	})
	return out, nil
}

func (s *Store) Records(_ context.Context, p report.Period, limit int) ([]model.RecordListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RecordListing
	for _, r := range s.data.records {
		if !s.inPeriod(r, p) {
			continue
		}
		_, name := s.hospitalOf(r.PatientID)
		out = append(out, model.RecordListing{
			RecordID:     r.ID,
			Day:          r.Day,
			PatientID:    r.PatientID,
			PatientName:  s.data.patients[r.PatientID].Name,
			HospitalName: name,
			Total:        r.Total,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.After(out[j].Day)
		}
		return out[i].RecordID > out[j].RecordID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Lines(_ context.Context, p report.Period) ([]report.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []report.Line
	for _, li := range s.data.items {
		r, ok := s.data.records[li.RecordID]
		if !ok || !s.inPeriod(r, p) {
			continue
		}
		_, hname := s.hospitalOf(r.PatientID)
		proc := s.data.procedures[li.ProcedureID]
		out = append(out, report.Line{
			RecordID:      r.ID,
			Day:           r.Day,
			HospitalName:  hname,
			PatientID:     r.PatientID,
			PatientName:   s.data.patients[r.PatientID].Name,
			ProcedureCode: proc.Code,
			ProcedureName: proc.Name,
			Quantity:      li.Quantity,
			UnitPrice:     li.UnitPrice,
			PriceSource:   li.PriceSource,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case !a.Day.Equal(b.Day):
			return a.Day.Before(b.Day)
		case (a.HospitalName == nil) != (b.HospitalName == nil):
			return b.HospitalName == nil
		case a.HospitalName != nil && *a.HospitalName != *b.HospitalName:
			return *a.HospitalName < *b.HospitalName
		case a.PatientName != b.PatientName:
			return a.PatientName < b.PatientName
		default:
			return a.ProcedureName < b.ProcedureName
		}
	})
	return out, nil
}
