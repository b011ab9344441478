package legacy

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PlannedTariff is a default (insurer-less) tariff entry derived from the
// flat rates a hospital charged over a period.
type PlannedTariff struct {
	Slot       Slot
	HospitalID int64
	UnitPrice  decimal.Decimal
	ValidFrom  time.Time
	ValidTo    *time.Time
}

// Plan is the set of tariff entries that reproduce a rate history.
type Plan struct {
	Tariffs []PlannedTariff
	// Conflicts counts fees that disagreed with an earlier row of the same
	// hospital and day; the first fee seen for a day wins.
	Conflicts int
}

type groupKey struct {
	hospitalID int64
	slot       Slot
}

// BuildPlan derives tariff entries per (hospital, slot) from rows. A rate
// change on day D closes the running entry on D-1 and opens a new one on D;
// the last entry of each sequence stays open.
func BuildPlan(rows []Row) Plan {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Day.Before(sorted[j].Day) })

	var plan Plan
	open := map[groupKey]int{} // index into plan.Tariffs of the running entry
	for _, r := range sorted {
		for _, s := range Slots {
			k := groupKey{r.HospitalID, s}
			fee := s.Fee(r.Rates)
			idx, ok := open[k]
			if !ok {
				open[k] = len(plan.Tariffs)
				plan.Tariffs = append(plan.Tariffs, PlannedTariff{Slot: s, HospitalID: r.HospitalID, UnitPrice: fee, ValidFrom: r.Day})
				continue
			}
			cur := &plan.Tariffs[idx]
			if cur.UnitPrice.Equal(fee) {
				continue
			}
			if !r.Day.After(cur.ValidFrom) {
				plan.Conflicts++
				continue
			}
			end := r.Day.AddDate(0, 0, -1)
			cur.ValidTo = &end
			open[k] = len(plan.Tariffs)
			plan.Tariffs = append(plan.Tariffs, PlannedTariff{Slot: s, HospitalID: r.HospitalID, UnitPrice: fee, ValidFrom: r.Day})
		}
	}

	sort.SliceStable(plan.Tariffs, func(i, j int) bool {
		a, b := plan.Tariffs[i], plan.Tariffs[j]
		if a.HospitalID != b.HospitalID {
			return a.HospitalID < b.HospitalID
		}
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		return a.ValidFrom.Before(b.ValidFrom)
	})
	return plan
}
