package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource records where a line item's frozen unit price came from.
type PriceSource string

const (
	PriceFromTariff PriceSource = "tariff"
	PriceManual     PriceSource = "manual"
	// PriceNone marks items frozen at zero because no tariff covered the day.
	PriceNone PriceSource = "none"
)

// ProductionRecord is the production of one patient on one day. Total is a
// cache of the sum of its line items and is only written by recomputation.
type ProductionRecord struct {
	ID        int64
	PatientID int64
	Day       time.Time
	Total     decimal.Decimal
	CreatedAt time.Time
	CreatedBy *string
}

// LineItem is one procedure billed within a production record.
type LineItem struct {
	ID          int64
	RecordID    int64
	ProcedureID int64
	Quantity    int
	UnitPrice   decimal.Decimal
	PriceSource PriceSource
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedBy   *string
}

// Amount is quantity times the frozen unit price.
func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// IsCents reports whether d has no more than two decimal places, the
// precision prices are stored with.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// SumItems adds up the amounts of items.
func SumItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Amount())
	}
	return total
}
