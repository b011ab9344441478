package model

import "time"

type Observation struct {
	ID          int64
	PatientID   int64
	Description string
	CreatedAt   time.Time
	CreatedBy   *string
}

// ConductDescription is an entry of the conduct catalog ("dialysis today", ...).
type ConductDescription struct {
	ID          int64
	Description string
}

type Conduct struct {
	ID            int64
	PatientID     int64
	DescriptionID int64
	Description   string // filled on reads
	CreatedAt     time.Time
	CreatedBy     *string
}

// AccessDescription names a kind of vascular access device.
type AccessDescription struct {
	ID          int64
	Description string
}

// VascularAccess is a patient's dialysis access device. DaysSinceImplantation
// is a snapshot taken at save time and goes stale between saves.
type VascularAccess struct {
	ID                    int64
	PatientID             int64
	DescriptionID         *int64
	ImplantedOn           time.Time
	DaysSinceImplantation int
	CreatedAt             time.Time
	CreatedBy             *string
}

// CurrentDays derives the day count as of today instead of the saved snapshot.
func (a VascularAccess) CurrentDays(today time.Time) int {
	return DaysBetween(a.ImplantedOn, today)
}
